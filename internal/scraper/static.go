package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// StaticFetcher uses Colly for static HTML fetching.
type StaticFetcher struct {
	config FetcherConfig
}

// NewStaticFetcher creates a new static fetcher.
func NewStaticFetcher(cfg FetcherConfig) *StaticFetcher {
	return &StaticFetcher{config: cfg.withDefaults()}
}

// Fetch retrieves a page using Colly.
func (f *StaticFetcher) Fetch(ctx context.Context, targetURL string, opts FetchOptions) (Page, error) {
	result := Page{
		URL:       targetURL,
		FetchedAt: time.Now(),
	}

	// A new collector per request; colly refuses to revisit URLs otherwise.
	c := colly.NewCollector(
		colly.UserAgent(coalesce(opts.UserAgent, f.config.UserAgent)),
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
	)

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = f.config.Timeout
	}
	c.SetRequestTimeout(timeout)

	if len(opts.Headers) > 0 {
		c.OnRequest(func(r *colly.Request) {
			for k, v := range opts.Headers {
				r.Headers.Set(k, v)
			}
		})
	}

	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.ContentType = r.Headers.Get("Content-Type")
		result.HTML = string(r.Body)
		result.URL = r.Request.URL.String()
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			result.StatusCode = r.StatusCode
			fetchErr = &StatusError{URL: targetURL, Code: r.StatusCode}
			return
		}
		fetchErr = fmt.Errorf("fetch error: %w", err)
	})

	if err := c.Visit(targetURL); err != nil && fetchErr == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, fmt.Errorf("failed to visit URL: %w", err)
	}

	if fetchErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.As(fetchErr, new(*StatusError)) {
			return result, ctxErr
		}
		return result, fetchErr
	}

	if result.HTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML))
		if err != nil {
			return result, fmt.Errorf("failed to parse content: %w", err)
		}
		result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	return result, nil
}

// Close releases resources.
func (f *StaticFetcher) Close() error {
	return nil
}

// Type returns the fetcher type.
func (f *StaticFetcher) Type() string {
	return "static"
}
