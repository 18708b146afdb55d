// Package ratelimit paces this process's outbound requests: a flat
// multi-window gate for every fetch (GlobalFetcher), and the
// SCRAPER_SMART_SCRAPING policy (SmartFetcher) that paces list pages per
// site host and detail pages at an adaptive, time-of-day-aware hourly rate.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window caps how many requests may be admitted within a sliding span.
type Window struct {
	Span time.Duration
	Max  int
}

// WindowLimiter admits requests under several sliding windows at once.
// Rather than answering yes/no and making callers poll, it computes when the
// tightest window frees a slot so Wait can sleep exactly that long.
type WindowLimiter struct {
	mu      sync.Mutex
	windows []Window
	widest  time.Duration
	history []time.Time // admitted requests, oldest first, trimmed to the widest span
}

// NewWindowLimiter builds a limiter over the given windows. A window with a
// non-positive Max or Span is unbounded and dropped.
func NewWindowLimiter(windows ...Window) *WindowLimiter {
	wl := &WindowLimiter{}
	for _, w := range windows {
		if w.Max <= 0 || w.Span <= 0 {
			continue
		}
		wl.windows = append(wl.windows, w)
		if w.Span > wl.widest {
			wl.widest = w.Span
		}
	}
	return wl
}

// Wait blocks until every window admits one more request or ctx is
// cancelled. The request is recorded at admission time.
func (wl *WindowLimiter) Wait(ctx context.Context) error {
	for {
		wl.mu.Lock()
		wait := wl.admitWait(time.Now())
		wl.mu.Unlock()
		if wait <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// admitWait returns how long until a request can be admitted, recording it
// when the answer is "now". Callers must hold mu.
func (wl *WindowLimiter) admitWait(now time.Time) time.Duration {
	wl.trim(now)
	var wait time.Duration
	for _, w := range wl.windows {
		used := wl.usedSince(now.Add(-w.Span))
		if used < w.Max {
			continue
		}
		// The window frees a slot when its oldest in-window entry expires.
		frees := wl.history[len(wl.history)-used].Add(w.Span).Sub(now)
		if frees > wait {
			wait = frees
		}
	}
	if wait <= 0 {
		wl.history = append(wl.history, now)
	}
	return wait
}

// trim drops history no window can still see.
func (wl *WindowLimiter) trim(now time.Time) {
	cutoff := now.Add(-wl.widest)
	i := 0
	for i < len(wl.history) && !wl.history[i].After(cutoff) {
		i++
	}
	wl.history = wl.history[i:]
}

// usedSince counts admissions after cutoff. History is ordered, so scan from
// the newest end. Callers must hold mu.
func (wl *WindowLimiter) usedSince(cutoff time.Time) int {
	used := 0
	for i := len(wl.history) - 1; i >= 0 && wl.history[i].After(cutoff); i-- {
		used++
	}
	return used
}

// WindowUsage is one window's point-in-time usage.
type WindowUsage struct {
	Span time.Duration `json:"span"`
	Used int           `json:"used"`
	Max  int           `json:"max"`
}

// Snapshot reports per-window usage, for logs or a status surface.
func (wl *WindowLimiter) Snapshot() []WindowUsage {
	wl.mu.Lock()
	defer wl.mu.Unlock()
	now := time.Now()
	wl.trim(now)
	out := make([]WindowUsage, 0, len(wl.windows))
	for _, w := range wl.windows {
		out = append(out, WindowUsage{Span: w.Span, Used: wl.usedSince(now.Add(-w.Span)), Max: w.Max})
	}
	return out
}
