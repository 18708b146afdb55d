package ratelimit

import (
	"context"
	"time"
)

// fetcher matches orchestrator.Fetcher structurally, so this package does
// not import the orchestrator.
type fetcher interface {
	Get(ctx context.Context, url string) (string, error)
	GetDetail(ctx context.Context, url string) (string, error)
}

// GlobalFetcher wraps a Fetcher with the flat per-minute/hour/day caps from
// RateLimitConfig. It is the simpler sibling of SmartFetcher: no
// list-vs-detail distinction, no time-of-day pacing, just a blocking gate in
// front of every request. Used whenever rate_limit.enabled is on, either
// alone or underneath SmartFetcher when SCRAPER_SMART_SCRAPING is also on.
type GlobalFetcher struct {
	next    fetcher
	limiter *WindowLimiter
}

// NewGlobalFetcher builds the gate from the three flat caps; a cap of zero
// leaves that window unbounded.
func NewGlobalFetcher(next fetcher, requestsPerMinute, requestsPerHour, requestsPerDay int) *GlobalFetcher {
	return &GlobalFetcher{
		next: next,
		limiter: NewWindowLimiter(
			Window{Span: time.Minute, Max: requestsPerMinute},
			Window{Span: time.Hour, Max: requestsPerHour},
			Window{Span: 24 * time.Hour, Max: requestsPerDay},
		),
	}
}

func (g *GlobalFetcher) Get(ctx context.Context, url string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.next.Get(ctx, url)
}

func (g *GlobalFetcher) GetDetail(ctx context.Context, url string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.next.GetDetail(ctx, url)
}

// Usage exposes the underlying limiter's per-window usage, e.g. for a status
// log line.
func (g *GlobalFetcher) Usage() []WindowUsage {
	return g.limiter.Snapshot()
}
