// Package obslog is a thin leveled wrapper around the standard log package.
// Nothing in this module's go.mod pulls in a structured-logging library (no
// zap/zerolog/logrus), and the scheduler and ratelimit packages call
// log.Printf directly; this keeps that texture while giving the
// orchestrator a concrete logger type with key=value field formatting
// instead of ad-hoc prefixing.
package obslog

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Logger formats messages as "LEVEL prefix: message key=value key=value".
type Logger struct {
	std    *log.Logger
	prefix string
	fields []string
}

// New returns a Logger writing to stderr via the standard log package,
// matching how the scheduler and ratelimit packages already log.
func New(prefix string) *Logger {
	return &Logger{std: log.New(os.Stderr, "", log.LstdFlags), prefix: prefix}
}

// With returns a child logger carrying additional key=value fields that are
// appended to every subsequent message, the same idea as the repeated
// "Scheduler: ..." / "TaskManager: ..." prefixing elsewhere, made structured.
func (l *Logger) With(kv ...string) *Logger {
	child := &Logger{std: l.std, prefix: l.prefix, fields: append(append([]string{}, l.fields...), kv...)}
	return child
}

func (l *Logger) format(level, msg string) string {
	var b strings.Builder
	b.WriteString(level)
	b.WriteString(" ")
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteString(": ")
	}
	b.WriteString(msg)
	for i := 0; i+1 < len(l.fields); i += 2 {
		b.WriteString(" ")
		b.WriteString(l.fields[i])
		b.WriteString("=")
		b.WriteString(l.fields[i+1])
	}
	return b.String()
}

func (l *Logger) Info(msg string, args ...any)  { l.std.Println(l.format("INFO", fmt.Sprintf(msg, args...))) }
func (l *Logger) Warn(msg string, args ...any)  { l.std.Println(l.format("WARN", fmt.Sprintf(msg, args...))) }
func (l *Logger) Error(msg string, args ...any) { l.std.Println(l.format("ERROR", fmt.Sprintf(msg, args...))) }
