// Package cursor implements page cursors for paginated HTTP APIs.
package cursor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// URLCursor follows the "next" reference returned with each page.
// Relative references are anchored to the base URL the cursor was created
// with, never to the previous page, so a multi-hop traversal cannot drift.
type URLCursor struct {
	mu      sync.Mutex
	base    *url.URL
	current harvest.PageToken
	next    string
}

// NewURLCursor creates a cursor whose first page is base.
func NewURLCursor(base string) (*URLCursor, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %q", base)
	}
	return &URLCursor{
		base:    u,
		current: harvest.PageToken{Number: 1, URL: u.String()},
	}, nil
}

// Observe records the next reference from the page just fetched. An empty
// reference marks the last page.
func (c *URLCursor) Observe(next string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = strings.TrimSpace(next)
}

// Current returns the page last reached.
func (c *URLCursor) Current() harvest.PageToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// HasNext reports whether the last page carried a next reference.
func (c *URLCursor) HasNext(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next != "", nil
}

// Advance resolves the next reference against the base URL.
func (c *URLCursor) Advance(_ context.Context) (harvest.PageToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.next == "" {
		return harvest.PageToken{}, harvest.ErrExhausted
	}

	resolved, err := Resolve(c.base, c.next)
	if err != nil {
		return harvest.PageToken{}, fmt.Errorf("%w: %v", harvest.ErrExhausted, err)
	}
	if resolved == c.current.URL {
		return harvest.PageToken{}, fmt.Errorf("%w: next reference %q repeats the current page", harvest.ErrExhausted, c.next)
	}

	c.current = harvest.PageToken{Number: c.current.Number + 1, URL: resolved}
	c.next = ""
	return c.current, nil
}

// Seek positions the cursor at a saved page.
func (c *URLCursor) Seek(_ context.Context, token harvest.PageToken) error {
	if token.URL == "" {
		return fmt.Errorf("token %s has no URL", token)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = token
	c.next = ""
	return nil
}

// Resolve turns a next reference into an absolute URL. Absolute references
// are returned unchanged. Relative references are joined onto the base path
// ("/v1/items/" + "/page/3" = "/v1/items/page/3"); a query-only reference
// replaces the base query.
func Resolve(base *url.URL, next string) (string, error) {
	ref, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("invalid next reference %q: %w", next, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}

	out := *base
	out.Fragment = ""
	if ref.Path != "" {
		out.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
		out.RawPath = ""
	}
	out.RawQuery = ref.RawQuery
	return out.String(), nil
}
