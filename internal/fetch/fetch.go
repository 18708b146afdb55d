// Package fetch is the shared HTTP-fetching layer every site parser's
// caller uses: realistic headers, timeouts, retries, and maintenance/WAF
// block-page detection, folded into a maintenance-detection and soft/hard
// HTTP error taxonomy.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMaintenance signals a site-wide maintenance page or 503, which aborts
// the whole orchestrator run immediately.
var ErrMaintenance = errors.New("fetch: site under maintenance")

// ErrNotFound wraps an HTTP 404.
var ErrNotFound = errors.New("fetch: not found")

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var maintenanceMarkers = []string{
	"メンテナンス中",
	"ただいまメンテナンス",
	"只今メンテナンス作業中",
	"緊急メンテナンス",
}

// Client wraps http.Client with the politeness delay, retry, and
// maintenance-detection policy common to every parser.
type Client struct {
	http            *http.Client
	insecureHTTP    *http.Client
	userAgent       string
	politenessDelay time.Duration
	maxRetries      int
	retryDelay      time.Duration
	// insecureHosts lists domains for which SSL verification is disabled, a
	// known-broken-certificate whitelist, never a global toggle.
	insecureHosts map[string]bool
}

// Option configures a Client.
type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
		c.insecureHTTP.Timeout = d
	}
}

func WithPolitenessDelay(d time.Duration) Option {
	return func(c *Client) { c.politenessDelay = d }
}

func WithRetries(max int, delay time.Duration) Option {
	return func(c *Client) { c.maxRetries = max; c.retryDelay = delay }
}

func WithInsecureHost(host string) Option {
	return func(c *Client) { c.insecureHosts[host] = true }
}

// New constructs a Client with a 30s timeout and 2s politeness delay.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 30 * time.Second},
		insecureHTTP: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}},
		},
		userAgent:       defaultUserAgent,
		politenessDelay: 2 * time.Second,
		maxRetries:      3,
		retryDelay:      2 * time.Second,
		insecureHosts:   map[string]bool{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get fetches url, applying the politeness delay before the request,
// realistic browser headers, and a bounded retry loop on transient
// failures. It classifies the response into a soft/hard HTTP error taxonomy.
func (c *Client) Get(ctx context.Context, url string) (string, error) {
	time.Sleep(c.politenessDelay)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		body, err := c.doOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMaintenance) {
			// Hard errors are not retried: 404 is gated by the retry store,
			// maintenance aborts the whole run.
			return "", err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return "", fmt.Errorf("fetch %s: exhausted %d retries: %w", url, c.maxRetries, lastErr)
}

// GetDetail fetches a detail-page url. Client applies the same politeness
// delay and retry policy to list and detail pages alike; callers that need
// the SCRAPER_SMART_SCRAPING adaptive detail-page pacing wrap a Client in
// ratelimit.SmartFetcher, which paces this method through its adaptive
// detail limiter and Get through its list-page limiter.
func (c *Client) GetDetail(ctx context.Context, url string) (string, error) {
	return c.Get(ctx, url)
}

func (c *Client) doOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "ja")

	client := c.http
	if c.isInsecureHost(url) {
		client = c.insecureHTTP
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("soft http error: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("soft http error reading body: %w", err)
	}
	body := string(bodyBytes)

	if resp.StatusCode == http.StatusServiceUnavailable || isMaintenancePage(body) {
		return "", ErrMaintenance
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("soft http error: status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("soft http error: status %d", resp.StatusCode)
	}
	return body, nil
}

func (c *Client) isInsecureHost(rawURL string) bool {
	if len(c.insecureHosts) == 0 {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	for h := range c.insecureHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

func isMaintenancePage(body string) bool {
	for _, marker := range maintenanceMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
