package ratelimit

import (
	"context"
	"errors"
	"time"

	"real-estate-portal/internal/fetch"
)

// innerFetcher is the HTTP surface SmartFetcher wraps. Get and GetDetail are
// kept distinct (rather than collapsed to one method) because the homes
// site's Get is chromedp-backed while GetDetail stays plain HTTP; calling
// the wrong one here would launch a headless browser for a detail page.
type innerFetcher interface {
	Get(ctx context.Context, url string) (string, error)
	GetDetail(ctx context.Context, url string) (string, error)
}

// SmartFetcher implements orchestrator.Fetcher, adding the
// SCRAPER_SMART_SCRAPING policy on top of a plain fetcher: list pages pass
// through a concurrency + jittered-delay limiter, detail pages pass through
// an AdaptiveDetailLimiter that slows down (and later ramps back up) in
// response to the observed failure rate.
type SmartFetcher struct {
	inner  innerFetcher
	list   *ListPageLimiter
	detail *AdaptiveDetailLimiter
	caller string
}

// NewSmartFetcher wraps inner with the default pacing policy: at most 2
// concurrent list-page requests with a 1-3s jittered delay per site host, and
// an adaptive per-hour cap on detail pages that starts at dayPerHour during
// 10:00-22:00, nightPerHour during 02:00-06:00, and defaultPerHour
// otherwise, backing off to SlowPerHour whenever the trailing-window
// failure rate crosses SlowThreshold.
func NewSmartFetcher(inner innerFetcher, caller string, dayPerHour, nightPerHour, defaultPerHour int) *SmartFetcher {
	return &SmartFetcher{
		inner:  inner,
		caller: caller,
		list:   NewListPageLimiter(2, time.Second, 2*time.Second),
		detail: NewAdaptiveDetailLimiter(
			DetailPacing{DayPerHour: dayPerHour, NightPerHour: nightPerHour, DefaultPerHour: defaultPerHour},
			AdaptiveConfig{},
		),
	}
}

// Get paces and issues a list-page fetch, spaced per site host.
func (s *SmartFetcher) Get(ctx context.Context, url string) (string, error) {
	s.list.Acquire(HostOf(url))
	defer s.list.Release()
	return s.inner.Get(ctx, url)
}

// GetDetail paces a detail-page fetch through the adaptive limiter and
// feeds the outcome back into its failure-rate window. A 404 or a
// maintenance abort is not counted as a pacing failure: a 404 is an
// expected, gate-handled outcome and a maintenance page is a site-wide
// event, neither is evidence this caller specifically is being throttled.
// Soft HTTP errors (timeouts, other 5xx) do count.
func (s *SmartFetcher) GetDetail(ctx context.Context, url string) (string, error) {
	s.detail.Acquire(s.caller)
	body, err := s.inner.GetDetail(ctx, url)
	success := err == nil || errors.Is(err, fetch.ErrNotFound) || errors.Is(err, fetch.ErrMaintenance)
	s.detail.Observe(success)
	return body, err
}
