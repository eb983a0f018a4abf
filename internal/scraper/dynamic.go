package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/harvest/internal/logger"
)

// Browser owns a headless Chrome process. Sessions are tabs within it.
type Browser struct {
	config      FetcherConfig
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// NewBrowser launches headless Chrome.
func NewBrowser(cfg FetcherConfig) (*Browser, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(cfg.UserAgent),
	)

	chromePath := cfg.ChromePath
	if chromePath == "" {
		chromePath = FindChromePath()
	}
	if chromePath != "" {
		opts = append(opts, chromedp.ExecPath(chromePath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	logger.Debug("browser allocator created",
		"headless", cfg.Headless,
		"chrome", chromePath,
		"timeout", cfg.Timeout)

	return &Browser{
		config:      cfg,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancel:      cancel,
	}, nil
}

// NewSession opens a new tab.
func (b *Browser) NewSession(ctx context.Context) (*ChromeSession, error) {
	tab, cancel := chromedp.NewContext(b.browserCtx)

	s := &ChromeSession{tab: tab, cancel: cancel, timeout: b.config.Timeout}
	// The first Run opens the tab.
	if err := s.run(ctx, b.config.Timeout, chromedp.ActionFunc(func(context.Context) error { return nil })); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}
	return s, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.cancel()
	b.cancelAlloc()
	return nil
}

// ChromeSession is a Session backed by a chromedp tab.
type ChromeSession struct {
	tab     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

// Navigate implements Session.
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	logger.Debug("browser navigate", "url", url)
	return s.run(ctx, s.timeout, chromedp.Navigate(url))
}

// WaitVisible implements Session.
func (s *ChromeSession) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.timeout
	}
	return s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Exists implements Session.
func (s *ChromeSession) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, s.timeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Click implements Session.
func (s *ChromeSession) Click(ctx context.Context, selector string) error {
	return s.run(ctx, s.timeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Back implements Session.
func (s *ChromeSession) Back(ctx context.Context) error {
	return s.run(ctx, s.timeout, chromedp.NavigateBack())
}

// Location implements Session.
func (s *ChromeSession) Location(ctx context.Context) (string, error) {
	var loc string
	err := s.run(ctx, s.timeout, chromedp.Location(&loc))
	return loc, err
}

// HTML implements Session.
func (s *ChromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, s.timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Close implements Session.
func (s *ChromeSession) Close() error {
	s.cancel()
	return nil
}

// DynamicFetcher renders each page in a fresh tab.
type DynamicFetcher struct {
	browser *Browser
}

// NewDynamicFetcher creates a dynamic fetcher with its own browser.
func NewDynamicFetcher(cfg FetcherConfig) (*DynamicFetcher, error) {
	b, err := NewBrowser(cfg)
	if err != nil {
		return nil, err
	}
	return &DynamicFetcher{browser: b}, nil
}

// Fetch renders targetURL and returns the resulting markup.
func (f *DynamicFetcher) Fetch(ctx context.Context, targetURL string, opts FetchOptions) (Page, error) {
	result := Page{URL: targetURL, FetchedAt: time.Now()}

	s, err := f.browser.NewSession(ctx)
	if err != nil {
		return result, err
	}
	defer func() { _ = s.Close() }()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = f.browser.config.Timeout
	}
	wait := coalesce(opts.WaitForSelector, "body")

	var html, title string
	err = s.run(ctx, timeout,
		chromedp.Navigate(targetURL),
		chromedp.WaitVisible(wait, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Title(&title),
		chromedp.Location(&result.URL),
	)
	if err != nil {
		return result, fmt.Errorf("browser automation failed: %w", err)
	}

	result.HTML = html
	result.Title = strings.TrimSpace(title)
	result.StatusCode = 200 // chromedp doesn't easily expose status codes
	logger.Debug("dynamic fetch complete", "url", result.URL, "html_size", len(html))
	return result, nil
}

// Close releases browser resources.
func (f *DynamicFetcher) Close() error {
	return f.browser.Close()
}

// Type returns the fetcher type.
func (f *DynamicFetcher) Type() string {
	return "dynamic"
}
