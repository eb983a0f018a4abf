// Package apisource harvests paginated JSON and CSV HTTP APIs: Cratejoy
// (next-reference pages), Shopify (since_id watermark pages) and published
// spreadsheet exports (a single page).
package apisource

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/version"
)

// ClientConfig configures an API client.
type ClientConfig struct {
	User      string
	Password  string
	UserAgent string
	Timeout   time.Duration
}

// Client is an HTTP client with basic auth for one API.
type Client struct {
	http *resty.Client
}

// HTTPError is a response outside the 2xx range.
type HTTPError struct {
	URL    string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GET %s: HTTP %d: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.Status)
}

// NewClient creates a client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = version.UserAgent()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New()
	client.SetHeader("user-agent", cfg.UserAgent)
	client.SetTimeout(cfg.Timeout)
	if cfg.User != "" || cfg.Password != "" {
		client.SetBasicAuth(cfg.User, cfg.Password)
	}
	return &Client{http: client}
}

// Get fetches url and returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if res.IsError() {
		return nil, &HTTPError{URL: url, Status: res.StatusCode(), Body: truncate(res.String(), 200)}
	}

	logger.Debug("api page fetched", "url", url, "status", res.StatusCode(), "bytes", len(res.Body()), "elapsed", res.Time())
	return res.Body(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
