// Package jsonctx extracts a JS object literal embedded in a <script> block
// (e.g. a `window.__SERVER_SIDE_CONTEXT__ = {...};` assignment) and makes its
// fields available as a loosely-typed map. The homes parser is its only
// user.
package jsonctx

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var assignmentRe = regexp.MustCompile(`__SERVER_SIDE_CONTEXT__\s*=\s*(\{.*?\});`)

// ExtractContext finds the first `__SERVER_SIDE_CONTEXT__ = {...};`
// assignment in html and parses it into a generic map. JS object literals
// permit unquoted keys and single-quoted strings, which plain
// encoding/json rejects, so the object text is normalized to valid JSON
// first.
func ExtractContext(html string) (map[string]any, bool) {
	m := assignmentRe.FindStringSubmatch(html)
	if m == nil {
		return nil, false
	}
	normalized := jsObjectToJSON(m[1])
	var out map[string]any
	if err := json.Unmarshal([]byte(normalized), &out); err != nil {
		return nil, false
	}
	return out, true
}

var (
	unquotedKeyRe = regexp.MustCompile(`([{,]\s*)([A-Za-z_$][A-Za-z0-9_$]*)\s*:`)
	singleQuoteRe = regexp.MustCompile(`'((?:\\.|[^'\\])*)'`)
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// jsObjectToJSON converts the common subset of JS-object-literal syntax
// (unquoted identifier keys, single-quoted strings, trailing commas) into
// valid JSON text.
func jsObjectToJSON(js string) string {
	out := unquotedKeyRe.ReplaceAllString(js, `$1"$2":`)
	out = singleQuoteRe.ReplaceAllStringFunc(out, func(s string) string {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `"`, `\"`)
		return `"` + inner + `"`
	})
	out = trailingCommaRe.ReplaceAllString(out, "$1")
	return out
}

// GetNestedValue walks a dotted path ("a.b.c") into a generic map tree.
func GetNestedValue(ctx map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = ctx
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// GetString reads a string-valued nested field, coercing numbers if needed.
func GetString(ctx map[string]any, path string) (string, bool) {
	v, ok := GetNestedValue(ctx, path)
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// GetFloat reads a numeric nested field, parsing string-encoded numbers too.
func GetFloat(ctx map[string]any, path string) (float64, bool) {
	v, ok := GetNestedValue(ctx, path)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// GetInt reads an integer-valued nested field.
func GetInt(ctx map[string]any, path string) (int, bool) {
	f, ok := GetFloat(ctx, path)
	if !ok {
		return 0, false
	}
	return int(f), true
}
