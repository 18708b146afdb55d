package orchestrator

import (
	"fmt"
	"sync"
)

// FieldBreaker is the "critical-field error rate" circuit breaker, tracking
// one independent counter set per critical field (price, building_name,
// area, layout, floor, built_year). A field opens the breaker either when
// its miss total for the run reaches the count threshold, or when its miss
// rate crosses the rate threshold after enough attempts. The count is
// cumulative for the whole run: a successful extraction between misses does
// not reset it, so an intermittently drifting selector still trips once its
// misses add up.
type FieldBreaker struct {
	missThreshold int
	criticalRate  float64
	criticalCount int

	mu     sync.Mutex
	fields map[string]*fieldCounters
}

type fieldCounters struct {
	attempts int
	misses   int
}

// NewFieldBreaker constructs a breaker using the given thresholds (the
// config defaults are consecutive_errors=5, critical_error_rate=0.5,
// critical_error_count=10) unless overridden by the caller.
func NewFieldBreaker(missThreshold int, criticalRate float64, criticalCount int) *FieldBreaker {
	return &FieldBreaker{
		missThreshold: missThreshold,
		criticalRate:  criticalRate,
		criticalCount: criticalCount,
		fields:        make(map[string]*fieldCounters),
	}
}

// Record reports one attempt to extract field, hit or miss. It returns
// (tripped, reason) — once tripped for a field the breaker is a one-way
// valve for the remainder of the run; the orchestrator aborts immediately.
func (b *FieldBreaker) Record(field string, hit bool) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.fields[field]
	if !ok {
		c = &fieldCounters{}
		b.fields[field] = c
	}
	c.attempts++
	if hit {
		return false, ""
	}
	c.misses++

	if c.misses >= b.missThreshold {
		return true, fmt.Sprintf("field %q: %d extraction misses this run", field, c.misses)
	}
	if c.attempts >= b.criticalCount {
		rate := float64(c.misses) / float64(c.attempts)
		if rate > b.criticalRate {
			return true, fmt.Sprintf("field %q: error rate %.2f over %d attempts", field, rate, c.attempts)
		}
	}
	return false, ""
}

// Rate reports the current miss rate for field, for alert messages.
func (b *FieldBreaker) Rate(field string) (rate float64, attempts int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.fields[field]
	if !ok || c.attempts == 0 {
		return 0, 0
	}
	return float64(c.misses) / float64(c.attempts), c.attempts
}

// SuspiciousGuard is the "suspicious-update guard": five consecutive
// flagged updates (large area/price swing, or floor dropping to null where it
// was previously known) within one run abort it.
type SuspiciousGuard struct {
	threshold   int
	consecutive int
}

func NewSuspiciousGuard(threshold int) *SuspiciousGuard {
	return &SuspiciousGuard{threshold: threshold}
}

// Record reports one update's SuspiciousUpdate flag. Returns true once the
// consecutive streak reaches the configured threshold.
func (g *SuspiciousGuard) Record(suspicious bool) bool {
	if !suspicious {
		g.consecutive = 0
		return false
	}
	g.consecutive++
	return g.consecutive >= g.threshold
}

// SelectorTracker is the optional per-parser "selector usage tracker":
// tracks success/fail per named selector and raises once a selector's
// failure rate reaches 50% once it has at least 5 failures. A parser opts in by
// asserting its Parser value against the SelectorReporter interface and
// calling Record itself; the orchestrator never requires it.
type SelectorTracker struct {
	mu        sync.Mutex
	selectors map[string]*selectorCounters
}

type selectorCounters struct {
	attempts int
	failures int
}

func NewSelectorTracker() *SelectorTracker {
	return &SelectorTracker{selectors: make(map[string]*selectorCounters)}
}

// Record reports one use of selector, hit or miss, returning true if it has
// now crossed the alert threshold (>=50% failures, with >=5 failures).
func (t *SelectorTracker) Record(selector string, ok bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, found := t.selectors[selector]
	if !found {
		c = &selectorCounters{}
		t.selectors[selector] = c
	}
	c.attempts++
	if !ok {
		c.failures++
	}
	return c.failures >= 5 && float64(c.failures)/float64(c.attempts) >= 0.5
}

// SelectorReporter is the optional capability a Parser implementation may
// declare to feed the SelectorTracker; no parser in the sites package
// implements it.
type SelectorReporter interface {
	SelectorUsage() map[string]struct{ Attempts, Failures int }
}
