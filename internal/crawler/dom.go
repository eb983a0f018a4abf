package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/scraper"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// DOMCursor pages through a listing by clicking its "next" control in a
// live browser session. It keeps no node handles: every check queries the
// page as it is now.
type DOMCursor struct {
	mu      sync.Mutex
	session scraper.Session
	config  Config
	current harvest.PageToken

	// clickedFrom is the location a next click was issued from while the
	// page it leads to has not been adopted yet. Advance resumes the wait
	// instead of clicking again.
	clickedFrom string
}

// NewDOMCursor creates a cursor positioned at cfg.StartURL. Nothing is
// loaded until the listing fetcher asks for the first page.
func NewDOMCursor(session scraper.Session, cfg Config) (*DOMCursor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ListingMarker == "" {
		return nil, fmt.Errorf("listing marker is required")
	}
	return &DOMCursor{
		session: session,
		config:  cfg,
		current: harvest.PageToken{Number: 1, URL: cfg.StartURL},
	}, nil
}

// Current implements harvest.PageCursor.
func (c *DOMCursor) Current() harvest.PageToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// HasNext reports whether an enabled next control is on the page, or a
// click on it is still settling.
func (c *DOMCursor) HasNext(ctx context.Context) (bool, error) {
	c.mu.Lock()
	pending := c.clickedFrom != ""
	c.mu.Unlock()
	if pending {
		return true, nil
	}
	return c.session.Exists(ctx, c.config.NextSelector)
}

// Advance clicks the next control and waits for a new listing page. A wait
// that times out is treated as the last page. When a previous call failed
// after its click, Advance waits for that click's page rather than clicking
// again.
func (c *DOMCursor) Advance(ctx context.Context) (harvest.PageToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous := c.clickedFrom
	if previous == "" {
		loc, err := c.session.Location(ctx)
		if err != nil {
			return harvest.PageToken{}, err
		}
		if err := c.session.Click(ctx, c.config.NextSelector); err != nil {
			return harvest.PageToken{}, fmt.Errorf("click next: %w", err)
		}
		previous = loc
		c.clickedFrom = loc
	} else {
		logger.Debug("resuming wait for next page", "page", c.current.Number, "from", previous)
	}

	loc, err := scraper.WaitForChange(ctx, c.session, previous, c.config.ListingMarker, c.config.wait(), 0)
	if errors.Is(err, scraper.ErrTimeout) {
		c.clickedFrom = ""
		logger.Warn("next page did not load, assuming last page",
			"page", c.current.Number, "url", previous, "wait", c.config.wait())
		return harvest.PageToken{}, fmt.Errorf("%w: next page did not load within %s", harvest.ErrExhausted, c.config.wait())
	}
	if err != nil {
		return harvest.PageToken{}, err
	}

	c.clickedFrom = ""
	c.current = harvest.PageToken{Number: c.current.Number + 1, URL: loc}
	return c.current, nil
}

// Reacquire reloads the current listing page and waits for it to render.
func (c *DOMCursor) Reacquire(ctx context.Context) error {
	c.mu.Lock()
	tok := c.current
	c.clickedFrom = ""
	c.mu.Unlock()
	if err := c.session.Navigate(ctx, tok.URL); err != nil {
		return err
	}
	return c.session.WaitVisible(ctx, c.config.ListingMarker, c.config.wait())
}

// Seek positions the cursor at a saved listing URL. The page is loaded by
// the next FetchPage.
func (c *DOMCursor) Seek(_ context.Context, token harvest.PageToken) error {
	if token.URL == "" {
		return fmt.Errorf("token %s has no URL", token)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = token
	c.clickedFrom = ""
	return nil
}

// DOMListing lists the detail links on the listing page loaded in a session.
type DOMListing struct {
	session scraper.Session
	config  Config
	items   *LinkSelector
}

// NewDOMListing creates a listing fetcher sharing session with a DOMCursor.
func NewDOMListing(session scraper.Session, cfg Config) (*DOMListing, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	items, err := NewLinkSelector(cfg.ItemSelector, "")
	if err != nil {
		return nil, err
	}
	return &DOMListing{session: session, config: cfg, items: items}, nil
}

// FetchPage implements harvest.RecordFetcher. If the session is not on the
// requested page (first page, resume, retry) it navigates there first.
func (l *DOMListing) FetchPage(ctx context.Context, token harvest.PageToken) ([]harvest.RecordHandle, error) {
	loc, err := l.session.Location(ctx)
	if err != nil {
		return nil, err
	}
	if !SameURL(loc, token.URL) {
		if err := l.session.Navigate(ctx, token.URL); err != nil {
			return nil, err
		}
	}
	if l.config.ListingMarker != "" {
		if err := l.session.WaitVisible(ctx, l.config.ListingMarker, l.config.wait()); err != nil {
			return nil, fmt.Errorf("listing did not render: %w", err)
		}
	}

	html, err := l.session.HTML(ctx)
	if err != nil {
		return nil, err
	}
	if loc, err = l.session.Location(ctx); err != nil {
		return nil, err
	}

	links, err := l.items.ExtractLinks(html, loc)
	if err != nil {
		return nil, err
	}
	handles := make([]harvest.RecordHandle, len(links))
	for i, link := range links {
		handles[i] = harvest.Link(link)
	}
	return handles, nil
}

// DOMEnricher opens each detail link in the shared session, extracts it,
// and navigates back to the listing.
type DOMEnricher struct {
	session scraper.Session
	config  Config
	extract ExtractFunc
}

// NewDOMEnricher creates an enricher. It must run on a single worker.
func NewDOMEnricher(session scraper.Session, cfg Config, extract ExtractFunc) (*DOMEnricher, error) {
	if cfg.DetailMarker == "" || cfg.ListingMarker == "" {
		return nil, fmt.Errorf("detail and listing markers are required")
	}
	if extract == nil {
		return nil, fmt.Errorf("extract function is required")
	}
	return &DOMEnricher{session: session, config: cfg, extract: extract}, nil
}

// Sequential implements harvest.Sequential.
func (e *DOMEnricher) Sequential() bool {
	return true
}

// Enrich implements harvest.DetailEnricher. The record is returned only
// once the session is back on the listing it started from; otherwise a
// *harvest.NavigationDriftError is returned.
func (e *DOMEnricher) Enrich(ctx context.Context, handle harvest.RecordHandle) (harvest.Record, error) {
	listing, err := e.session.Location(ctx)
	if err != nil {
		return harvest.Record{}, &harvest.NavigationDriftError{Err: err}
	}

	rec, extractErr := e.visit(ctx, handle)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return harvest.Record{}, ctxErr
	}

	if err := e.restore(ctx, listing); err != nil {
		return harvest.Record{}, err
	}
	return rec, extractErr
}

func (e *DOMEnricher) visit(ctx context.Context, handle harvest.RecordHandle) (harvest.Record, error) {
	if err := e.session.Navigate(ctx, handle.Ref); err != nil {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: handle.Ref, Err: err}
	}
	if err := e.session.WaitVisible(ctx, e.config.DetailMarker, e.config.wait()); err != nil {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: handle.Ref, Field: e.config.DetailMarker, Err: err}
	}
	html, err := e.session.HTML(ctx)
	if err != nil {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: handle.Ref, Err: err}
	}
	return e.extract(html, handle.Ref)
}

func (e *DOMEnricher) restore(ctx context.Context, listing string) error {
	// A detail page that never loaded leaves the tab on the listing.
	if loc, err := e.session.Location(ctx); err == nil && SameURL(loc, listing) {
		return nil
	}
	if err := e.session.Back(ctx); err != nil {
		return &harvest.NavigationDriftError{Expected: listing, Err: fmt.Errorf("navigate back: %w", err)}
	}
	if err := e.session.WaitVisible(ctx, e.config.ListingMarker, e.config.wait()); err != nil {
		return &harvest.NavigationDriftError{Expected: listing, Err: fmt.Errorf("listing did not render: %w", err)}
	}
	loc, err := e.session.Location(ctx)
	if err != nil {
		return &harvest.NavigationDriftError{Expected: listing, Err: err}
	}
	if !SameURL(loc, listing) {
		return &harvest.NavigationDriftError{Expected: listing, Actual: loc}
	}
	return nil
}
