package crawler

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmylchreest/harvest/internal/scraper"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// LinkCursor follows the next href found in each fetched listing page.
// The listing fetcher reports the href with Observe.
type LinkCursor struct {
	mu      sync.Mutex
	start   string
	current harvest.PageToken
	next    string
	visited *Visited
}

// NewLinkCursor creates a cursor whose first page is start.
func NewLinkCursor(start string) *LinkCursor {
	v := NewVisited()
	v.Add(start)
	return &LinkCursor{
		start:   start,
		current: harvest.PageToken{Number: 1, URL: start},
		visited: v,
	}
}

// Observe records the absolute next URL of the page just fetched. An
// empty URL marks the last page.
func (c *LinkCursor) Observe(next string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = next
}

// Current implements harvest.PageCursor.
func (c *LinkCursor) Current() harvest.PageToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// HasNext implements harvest.PageCursor.
func (c *LinkCursor) HasNext(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next != "", nil
}

// Advance moves to the observed next page. Links that leave the site or
// return to a page already visited end the traversal.
func (c *LinkCursor) Advance(_ context.Context) (harvest.PageToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.next
	c.next = ""
	switch {
	case next == "":
		return harvest.PageToken{}, harvest.ErrExhausted
	case !IsSameDomain(next, c.start):
		return harvest.PageToken{}, fmt.Errorf("%w: next link %s leaves the site", harvest.ErrExhausted, next)
	case !c.visited.Add(next):
		return harvest.PageToken{}, fmt.Errorf("%w: next link %s was already visited", harvest.ErrExhausted, next)
	}

	c.current = harvest.PageToken{Number: c.current.Number + 1, URL: next}
	return c.current, nil
}

// Seek implements harvest.Seeker.
func (c *LinkCursor) Seek(_ context.Context, token harvest.PageToken) error {
	if token.URL == "" {
		return fmt.Errorf("token %s has no URL", token)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = token
	c.next = ""
	c.visited.Add(token.URL)
	return nil
}

// StaticListing fetches listing pages over HTTP, returns their detail
// links, and reports the next page to its cursor.
type StaticListing struct {
	fetcher scraper.Fetcher
	cursor  *LinkCursor
	config  Config
	items   *LinkSelector
	next    *PaginationSelector
	opts    scraper.FetchOptions
}

// NewStaticListing creates a listing fetcher that feeds cursor.
func NewStaticListing(fetcher scraper.Fetcher, cursor *LinkCursor, cfg Config) (*StaticListing, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	items, err := NewLinkSelector(cfg.ItemSelector, "")
	if err != nil {
		return nil, err
	}
	return &StaticListing{
		fetcher: fetcher,
		cursor:  cursor,
		config:  cfg,
		items:   items,
		next:    NewPaginationSelector(cfg.NextSelector),
		opts:    scraper.FetchOptions{Timeout: cfg.wait(), WaitForSelector: cfg.ListingMarker},
	}, nil
}

// FetchPage implements harvest.RecordFetcher.
func (l *StaticListing) FetchPage(ctx context.Context, token harvest.PageToken) ([]harvest.RecordHandle, error) {
	page, err := l.fetcher.Fetch(ctx, token.URL, l.opts)
	if err != nil {
		return nil, err
	}
	if l.config.ListingMarker != "" && !HasMarker(page.HTML, l.config.ListingMarker) {
		return nil, fmt.Errorf("listing marker %q not found at %s", l.config.ListingMarker, page.URL)
	}

	links, err := l.items.ExtractLinks(page.HTML, page.URL)
	if err != nil {
		return nil, err
	}
	next, _ := l.next.FindNextPage(page.HTML, page.URL)
	l.cursor.Observe(next)

	handles := make([]harvest.RecordHandle, len(links))
	for i, link := range links {
		handles[i] = harvest.Link(link)
	}
	return handles, nil
}

// PageEnricher fetches detail pages over HTTP. It holds no navigation
// state and is safe for concurrent use.
type PageEnricher struct {
	fetcher scraper.Fetcher
	extract ExtractFunc
	opts    scraper.FetchOptions
}

// NewPageEnricher creates an enricher.
func NewPageEnricher(fetcher scraper.Fetcher, cfg Config, extract ExtractFunc) *PageEnricher {
	return &PageEnricher{
		fetcher: fetcher,
		extract: extract,
		opts:    scraper.FetchOptions{Timeout: cfg.wait(), WaitForSelector: cfg.DetailMarker},
	}
}

// Enrich implements harvest.DetailEnricher.
func (e *PageEnricher) Enrich(ctx context.Context, handle harvest.RecordHandle) (harvest.Record, error) {
	page, err := e.fetcher.Fetch(ctx, handle.Ref, e.opts)
	if err != nil {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: handle.Ref, Err: err}
	}
	return e.extract(page.HTML, handle.Ref)
}
