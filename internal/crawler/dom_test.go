package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmylchreest/harvest/internal/scraper"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// fakeTab is an in-memory browser tab: a history stack over a fixed set of
// pages. Selectors are matched against the page markup.
type fakeTab struct {
	pages   map[string]string
	history []string

	failNav   map[string]bool
	backTo    string // if set, Back lands here instead of the previous entry
	navigates int
	clicks    int

	// locationFailures makes Location fail this many times right after a click.
	locationFailures int
	justClicked      bool
}

func newFakeTab(pages map[string]string) *fakeTab {
	return &fakeTab{pages: pages, failNav: map[string]bool{}}
}

func (f *fakeTab) current() string {
	if len(f.history) == 0 {
		return "about:blank"
	}
	return f.history[len(f.history)-1]
}

func (f *fakeTab) Navigate(_ context.Context, url string) error {
	f.navigates++
	if f.failNav[url] {
		return fmt.Errorf("net::ERR_CONNECTION_RESET at %s", url)
	}
	f.history = append(f.history, url)
	return nil
}

func (f *fakeTab) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	if HasMarker(f.pages[f.current()], sel) {
		return nil
	}
	return scraper.ErrTimeout
}

func (f *fakeTab) Exists(_ context.Context, sel string) (bool, error) {
	return HasMarker(f.pages[f.current()], sel), nil
}

func (f *fakeTab) Click(ctx context.Context, sel string) error {
	next, ok := NewPaginationSelector(sel).FindNextPage(f.pages[f.current()], f.current())
	if !ok {
		return fmt.Errorf("no node matches %s", sel)
	}
	if err := f.Navigate(ctx, next); err != nil {
		return err
	}
	f.clicks++
	f.justClicked = true
	return nil
}

func (f *fakeTab) Back(context.Context) error {
	if f.backTo != "" {
		f.history = append(f.history, f.backTo)
		return nil
	}
	if len(f.history) < 2 {
		return errors.New("no history")
	}
	f.history = f.history[:len(f.history)-1]
	return nil
}

func (f *fakeTab) Location(context.Context) (string, error) {
	if f.justClicked && f.locationFailures > 0 {
		f.locationFailures--
		f.justClicked = false
		return "", errors.New("cdp: target closed")
	}
	return f.current(), nil
}

func (f *fakeTab) HTML(context.Context) (string, error) { return f.pages[f.current()], nil }

func (f *fakeTab) Close() error { return nil }

const (
	page1 = "https://books.example.com/browse"
	page2 = "https://books.example.com/browse?page=2"
)

func listingPage(next string, items ...string) string {
	html := `<html><body><div class="grid">`
	for _, it := range items {
		html += fmt.Sprintf(`<div class="grid-item"><a href="/products/%s">%s</a></div>`, it, it)
	}
	html += `</div><ul class="pagination">`
	if next != "" {
		html += fmt.Sprintf(`<li><a class="next" href="%s">Next</a></li>`, next)
	} else {
		html += `<li class="disabled"><a class="next" href="#">Next</a></li>`
	}
	return html + `</ul></body></html>`
}

func detailPage(title string) string {
	return fmt.Sprintf(`<html><body><h1>%s</h1><div id="book-cover"><img src="/c.jpg"></div></body></html>`, title)
}

func bookSite() map[string]string {
	return map[string]string{
		page1: listingPage("/browse?page=2", "a", "b"),
		page2: listingPage("", "c"),
		"https://books.example.com/products/a": detailPage("A"),
		"https://books.example.com/products/b": detailPage("B"),
		"https://books.example.com/products/c": detailPage("C"),
	}
}

func domConfig() Config {
	return Config{
		StartURL:      page1,
		ItemSelector:  "div.grid-item a",
		NextSelector:  "li:not(.disabled) > a.next",
		ListingMarker: "div.grid-item",
		DetailMarker:  "div#book-cover img",
		Wait:          time.Second,
	}
}

func extractTitle(html, ref string) (harvest.Record, error) {
	if !HasMarker(html, "h1") {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: ref, Field: "title", Err: errors.New("missing")}
	}
	return harvest.NewRecord(harvest.Field{Name: "url", Value: ref}), nil
}

type listSink struct {
	records []harvest.Record
}

func (s *listSink) Mode() harvest.Mode { return harvest.ModeAppend }
func (s *listSink) Append(_ context.Context, r harvest.Record) error {
	s.records = append(s.records, r)
	return nil
}
func (s *listSink) ReplaceAll(context.Context, []harvest.Record) error { return harvest.ErrModeMismatch }
func (s *listSink) Close() error                                      { return nil }

func (s *listSink) destination() harvest.Destination {
	return harvest.DestinationFunc(func(context.Context) (harvest.Sink, error) { return s, nil })
}

func TestDOM_HarvestsEveryPage(t *testing.T) {
	tab := newFakeTab(bookSite())
	cfg := domConfig()

	cursor, err := NewDOMCursor(tab, cfg)
	if err != nil {
		t.Fatal(err)
	}
	listing, err := NewDOMListing(tab, cfg)
	if err != nil {
		t.Fatal(err)
	}
	enricher, err := NewDOMEnricher(tab, cfg, extractTitle)
	if err != nil {
		t.Fatal(err)
	}

	sink := &listSink{}
	h, err := harvest.New("books", cursor, listing, sink.destination(),
		harvest.WithEnricher(enricher), harvest.WithBackoff(time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	run, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !run.Exhausted || run.Pages != 2 || run.Records != 3 {
		t.Errorf("run = %+v", run)
	}
	want := []string{"a", "b", "c"}
	for i, r := range sink.records {
		if got := r.String("url"); got != "https://books.example.com/products/"+want[i] {
			t.Errorf("record %d url = %q", i, got)
		}
	}
	if cursor.Current().URL != page2 {
		t.Errorf("cursor at %q, want %q", cursor.Current().URL, page2)
	}
}

func TestDOMCursor_AdvanceTimeoutIsExhaustion(t *testing.T) {
	site := bookSite()
	// The next link leads to a page without the listing marker.
	site[page2] = `<html><body>Maintenance</body></html>`
	tab := newFakeTab(site)
	tab.history = []string{page1}

	cfg := domConfig()
	cfg.Wait = 5 * time.Millisecond
	cursor, _ := NewDOMCursor(tab, cfg)

	_, err := cursor.Advance(context.Background())
	if !errors.Is(err, harvest.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if cursor.Current().Number != 1 {
		t.Errorf("cursor moved to %s", cursor.Current())
	}
}

const page3 = "https://books.example.com/browse?page=3"

func threePageSite() map[string]string {
	site := bookSite()
	site[page2] = listingPage("/browse?page=3", "c")
	site[page3] = listingPage("", "d")
	site["https://books.example.com/products/d"] = detailPage("D")
	return site
}

func TestDOM_FailureAfterClickKeepsNextPage(t *testing.T) {
	tab := newFakeTab(threePageSite())
	tab.locationFailures = 1
	cfg := domConfig()

	cursor, _ := NewDOMCursor(tab, cfg)
	listing, _ := NewDOMListing(tab, cfg)
	enricher, _ := NewDOMEnricher(tab, cfg, extractTitle)

	sink := &listSink{}
	h, err := harvest.New("books", cursor, listing, sink.destination(),
		harvest.WithEnricher(enricher), harvest.WithBackoff(time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	run, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Pages != 3 || run.Records != 4 {
		t.Errorf("pages = %d, records = %d, want 3 and 4", run.Pages, run.Records)
	}
	want := []string{"a", "b", "c", "d"}
	if len(sink.records) != len(want) {
		t.Fatalf("got %d records, want %d", len(sink.records), len(want))
	}
	for i, r := range sink.records {
		if got := r.String("url"); got != "https://books.example.com/products/"+want[i] {
			t.Errorf("record %d url = %q", i, got)
		}
	}
	if tab.clicks != 2 {
		t.Errorf("clicked next %d times, want 2", tab.clicks)
	}
}

func TestDOMCursor_AdvanceResumesPendingClick(t *testing.T) {
	tab := newFakeTab(threePageSite())
	tab.history = []string{page1}
	tab.locationFailures = 1
	cursor, _ := NewDOMCursor(tab, domConfig())
	ctx := context.Background()

	if _, err := cursor.Advance(ctx); err == nil {
		t.Fatal("expected error from the failed location check")
	}
	if cursor.Current().Number != 1 {
		t.Errorf("cursor moved to %s", cursor.Current())
	}

	// Page 2 is loaded, so HasNext must not look at its controls yet.
	ok, err := cursor.HasNext(ctx)
	if err != nil || !ok {
		t.Fatalf("HasNext() = %v, %v", ok, err)
	}

	tok, err := cursor.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if tok.Number != 2 || tok.URL != page2 {
		t.Errorf("token = %s, want page 2 at %s", tok, page2)
	}
	if tab.clicks != 1 {
		t.Errorf("clicked next %d times, want 1", tab.clicks)
	}
}

func TestDOMCursor_ReacquireDropsPendingClick(t *testing.T) {
	tab := newFakeTab(threePageSite())
	tab.history = []string{page1}
	tab.locationFailures = 1
	cursor, _ := NewDOMCursor(tab, domConfig())
	ctx := context.Background()

	if _, err := cursor.Advance(ctx); err == nil {
		t.Fatal("expected error from the failed location check")
	}
	if err := cursor.Reacquire(ctx); err != nil {
		t.Fatal(err)
	}
	if tab.current() != page1 {
		t.Fatalf("tab at %q after reacquire", tab.current())
	}

	tok, err := cursor.Advance(ctx)
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if tok.URL != page2 || tab.clicks != 2 {
		t.Errorf("token = %s, clicks = %d", tok, tab.clicks)
	}
}

func TestDOMCursor_HasNextFalseOnLastPage(t *testing.T) {
	tab := newFakeTab(bookSite())
	tab.history = []string{page2}
	cursor, _ := NewDOMCursor(tab, domConfig())

	ok, err := cursor.HasNext(context.Background())
	if err != nil || ok {
		t.Errorf("HasNext() = %v, %v", ok, err)
	}
}

func TestDOMCursor_SeekAndReacquire(t *testing.T) {
	tab := newFakeTab(bookSite())
	cursor, _ := NewDOMCursor(tab, domConfig())

	if err := cursor.Seek(context.Background(), harvest.PageToken{Number: 2}); err == nil {
		t.Error("expected error for token without URL")
	}
	if err := cursor.Seek(context.Background(), harvest.PageToken{Number: 2, URL: page2}); err != nil {
		t.Fatal(err)
	}
	if err := cursor.Reacquire(context.Background()); err != nil {
		t.Fatalf("Reacquire() error = %v", err)
	}
	if tab.current() != page2 {
		t.Errorf("tab at %q", tab.current())
	}
}

func TestDOMListing_SkipsNavigationWhenAlreadyThere(t *testing.T) {
	tab := newFakeTab(bookSite())
	tab.history = []string{page1}
	listing, _ := NewDOMListing(tab, domConfig())

	handles, err := listing.FetchPage(context.Background(), harvest.PageToken{Number: 1, URL: page1})
	if err != nil {
		t.Fatal(err)
	}
	if len(handles) != 2 || handles[0].Complete() {
		t.Errorf("handles = %+v", handles)
	}
	if tab.navigates != 0 {
		t.Errorf("navigated %d times", tab.navigates)
	}
}

func TestDOMEnricher_Drift(t *testing.T) {
	tab := newFakeTab(bookSite())
	tab.history = []string{page1}
	tab.backTo = page2
	enricher, _ := NewDOMEnricher(tab, domConfig(), extractTitle)

	_, err := enricher.Enrich(context.Background(), harvest.Link("https://books.example.com/products/a"))
	var drift *harvest.NavigationDriftError
	if !errors.As(err, &drift) {
		t.Fatalf("expected NavigationDriftError, got %v", err)
	}
	if drift.Expected != page1 || drift.Actual != page2 {
		t.Errorf("drift = %+v", drift)
	}
}

func TestDOMEnricher_MissingDetailMarker(t *testing.T) {
	site := bookSite()
	site["https://books.example.com/products/a"] = `<html><body><h1>A</h1></body></html>`
	tab := newFakeTab(site)
	tab.history = []string{page1}
	enricher, _ := NewDOMEnricher(tab, domConfig(), extractTitle)

	_, err := enricher.Enrich(context.Background(), harvest.Link("https://books.example.com/products/a"))
	var extractErr *harvest.RecordExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected RecordExtractionError, got %v", err)
	}
	if tab.current() != page1 {
		t.Errorf("tab not restored, at %q", tab.current())
	}
}

func TestDOMEnricher_FailedNavigationStaysOnListing(t *testing.T) {
	tab := newFakeTab(bookSite())
	tab.history = []string{page1}
	tab.failNav["https://books.example.com/products/a"] = true
	enricher, _ := NewDOMEnricher(tab, domConfig(), extractTitle)

	_, err := enricher.Enrich(context.Background(), harvest.Link("https://books.example.com/products/a"))
	var extractErr *harvest.RecordExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected RecordExtractionError, got %v", err)
	}
	if len(tab.history) != 1 {
		t.Errorf("history = %v", tab.history)
	}
}

func TestDOMEnricher_IsSequential(t *testing.T) {
	tab := newFakeTab(bookSite())
	cfg := domConfig()
	enricher, _ := NewDOMEnricher(tab, cfg, extractTitle)
	cursor, _ := NewDOMCursor(tab, cfg)
	listing, _ := NewDOMListing(tab, cfg)

	_, err := harvest.New("books", cursor, listing, (&listSink{}).destination(),
		harvest.WithEnricher(enricher), harvest.WithWorkers(4))
	if err == nil {
		t.Error("expected error for a shared-session enricher on several workers")
	}
}

func TestNewDOMCursor_RequiresListingMarker(t *testing.T) {
	cfg := domConfig()
	cfg.ListingMarker = ""
	if _, err := NewDOMCursor(newFakeTab(nil), cfg); err == nil {
		t.Error("expected error")
	}
}
