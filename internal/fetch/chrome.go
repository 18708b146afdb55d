package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeFetcher fetches list pages with a headless Chrome instance, for
// sites whose list pages assemble their JSON context client-side rather
// than emitting it directly in the server-rendered body. Detail pages are
// delegated to a plain Client: only the JS-rendered list page needs a real
// browser.
type ChromeFetcher struct {
	detail     *Client
	execPath   string
	renderWait time.Duration
}

// NewChromeFetcher wraps detail (used unmodified for GetDetail) with a
// headless-Chrome Get. execPath may be empty to use chromedp's bundled
// discovery.
func NewChromeFetcher(detail *Client, execPath string) *ChromeFetcher {
	return &ChromeFetcher{detail: detail, execPath: execPath, renderWait: 3 * time.Second}
}

// Get navigates to url in a headless Chrome tab, waits for the body to
// render, and returns the post-JS outerHTML.
func (f *ChromeFetcher) Get(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(defaultUserAgent),
	)
	if f.execPath != "" {
		opts = append(opts, chromedp.ExecPath(f.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(`body`, chromedp.ByQuery),
		chromedp.Sleep(f.renderWait),
		chromedp.OuterHTML(`html`, &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp fetch %s: %w", url, err)
	}
	return html, nil
}

// GetDetail fetches a detail page through the plain HTTP client.
func (f *ChromeFetcher) GetDetail(ctx context.Context, url string) (string, error) {
	return f.detail.GetDetail(ctx, url)
}

// HybridFetcher dispatches Get to a headless-Chrome fetch for hosts that
// render their list pages client-side and to the plain HTTP client for
// everything else, so one process-wide fetcher (as ingestd shares across
// every configured site) can serve both kinds of site.
type HybridFetcher struct {
	plain       *Client
	chrome      *ChromeFetcher
	chromeHosts []string
}

// NewHybridFetcher builds a HybridFetcher; chromeHosts are matched by
// substring against the request URL.
func NewHybridFetcher(plain *Client, chromeExecPath string, chromeHosts ...string) *HybridFetcher {
	return &HybridFetcher{
		plain:       plain,
		chrome:      NewChromeFetcher(plain, chromeExecPath),
		chromeHosts: chromeHosts,
	}
}

func (f *HybridFetcher) Get(ctx context.Context, url string) (string, error) {
	for _, host := range f.chromeHosts {
		if strings.Contains(url, host) {
			return f.chrome.Get(ctx, url)
		}
	}
	return f.plain.Get(ctx, url)
}

func (f *HybridFetcher) GetDetail(ctx context.Context, url string) (string, error) {
	return f.plain.GetDetail(ctx, url)
}
