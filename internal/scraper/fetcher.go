// Package scraper fetches web pages, either as static HTML or through a
// headless browser session.
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/harvest/internal/version"
)

// Page is fetched page data.
type Page struct {
	URL         string
	HTML        string
	Title       string
	StatusCode  int
	ContentType string
	FetchedAt   time.Time
}

// FetchOptions controls fetching behavior.
type FetchOptions struct {
	UserAgent       string
	Timeout         time.Duration
	WaitForSelector string // CSS selector to wait for (dynamic only)
	Headers         map[string]string
}

// Fetcher abstracts page fetching strategies.
type Fetcher interface {
	// Fetch retrieves a page.
	Fetch(ctx context.Context, url string, opts FetchOptions) (Page, error)

	// Close releases any resources (browser instances, etc.).
	Close() error

	// Type returns "static" or "dynamic".
	Type() string
}

// FetcherConfig holds common fetcher configuration.
type FetcherConfig struct {
	UserAgent  string
	Timeout    time.Duration
	Headless   bool
	ChromePath string // Empty searches the usual install locations
}

// DefaultFetcherConfig returns sensible defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent: version.UserAgent(),
		Timeout:   30 * time.Second,
		Headless:  true,
	}
}

func (c FetcherConfig) withDefaults() FetcherConfig {
	d := DefaultFetcherConfig()
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// FetchMode determines how pages are fetched.
type FetchMode string

const (
	FetchModeStatic  FetchMode = "static"
	FetchModeDynamic FetchMode = "dynamic"
)

// NewFetcher creates a fetcher for mode.
func NewFetcher(mode FetchMode, cfg FetcherConfig) (Fetcher, error) {
	switch mode {
	case FetchModeStatic, "":
		return NewStaticFetcher(cfg), nil
	case FetchModeDynamic:
		return NewDynamicFetcher(cfg)
	default:
		return nil, fmt.Errorf("unknown fetch mode: %s", mode)
	}
}

// StatusError is returned for HTTP responses outside the 2xx range.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.Code)
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
