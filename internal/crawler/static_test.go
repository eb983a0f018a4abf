package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmylchreest/harvest/internal/scraper"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

func staticSite(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		html, ok := pages[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(html))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func staticConfig(start string) Config {
	return Config{
		StartURL:      start,
		ItemSelector:  "div.grid-item a",
		NextSelector:  "a.next",
		ListingMarker: "div.grid-item",
		DetailMarker:  "div#book-cover img",
		Wait:          time.Second,
	}
}

func TestStatic_HarvestsEveryPage(t *testing.T) {
	srv := staticSite(t, map[string]string{
		"/browse":        listingPage("/browse?page=2", "a", "b"),
		"/browse?page=2": listingPage("", "c"),
		"/products/a":    detailPage("A"),
		"/products/b":    `<html><body>no title</body></html>`,
		"/products/c":    detailPage("C"),
	})

	cfg := staticConfig(srv.URL + "/browse")
	fetcher := scraper.NewStaticFetcher(scraper.FetcherConfig{})
	cursor := NewLinkCursor(cfg.StartURL)
	listing, err := NewStaticListing(fetcher, cursor, cfg)
	if err != nil {
		t.Fatal(err)
	}

	sink := &listSink{}
	h, err := harvest.New("books", cursor, listing, sink.destination(),
		harvest.WithEnricher(NewPageEnricher(fetcher, cfg, extractTitle)),
		harvest.WithWorkers(2),
		harvest.WithBackoff(time.Millisecond, time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	run, err := h.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if run.Pages != 2 || run.Records != 2 || run.Failures != 1 {
		t.Errorf("run = %+v", run)
	}
	if cursor.Current().URL != srv.URL+"/browse?page=2" {
		t.Errorf("cursor at %s", cursor.Current().URL)
	}
}

func TestLinkCursor_LoopEndsTraversal(t *testing.T) {
	c := NewLinkCursor("https://books.example.com/browse")
	c.Observe("https://books.example.com/browse?page=2")
	if _, err := c.Advance(context.Background()); err != nil {
		t.Fatal(err)
	}

	c.Observe("https://books.example.com/browse")
	_, err := c.Advance(context.Background())
	if !errors.Is(err, harvest.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	if c.Current().Number != 2 {
		t.Errorf("Current() = %s", c.Current())
	}
}

func TestLinkCursor_OffSiteEndsTraversal(t *testing.T) {
	c := NewLinkCursor("https://books.example.com/browse")
	c.Observe("https://ads.example.net/browse?page=2")

	ok, _ := c.HasNext(context.Background())
	if !ok {
		t.Fatal("HasNext() = false")
	}
	if _, err := c.Advance(context.Background()); !errors.Is(err, harvest.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestLinkCursor_NoNext(t *testing.T) {
	c := NewLinkCursor("https://books.example.com/browse")
	c.Observe("")
	if ok, _ := c.HasNext(context.Background()); ok {
		t.Error("HasNext() = true")
	}
	if _, err := c.Advance(context.Background()); err != harvest.ErrExhausted { //nolint:errorlint
		t.Errorf("expected bare ErrExhausted, got %v", err)
	}
}

func TestLinkCursor_Seek(t *testing.T) {
	c := NewLinkCursor("https://books.example.com/browse")
	tok := harvest.PageToken{Number: 5, URL: "https://books.example.com/browse?page=5"}
	if err := c.Seek(context.Background(), tok); err != nil {
		t.Fatal(err)
	}
	if c.Current() != tok {
		t.Errorf("Current() = %+v", c.Current())
	}
}

func TestStaticListing_MissingMarker(t *testing.T) {
	srv := staticSite(t, map[string]string{
		"/browse": `<html><body><p>We'll be right back</p></body></html>`,
	})
	cfg := staticConfig(srv.URL + "/browse")
	cursor := NewLinkCursor(cfg.StartURL)
	listing, _ := NewStaticListing(scraper.NewStaticFetcher(scraper.FetcherConfig{}), cursor, cfg)

	if _, err := listing.FetchPage(context.Background(), cursor.Current()); err == nil {
		t.Error("expected error for listing without marker")
	}
}

func TestPageEnricher_FetchFailure(t *testing.T) {
	srv := staticSite(t, map[string]string{})
	cfg := staticConfig(srv.URL)
	e := NewPageEnricher(scraper.NewStaticFetcher(scraper.FetcherConfig{}), cfg, extractTitle)

	_, err := e.Enrich(context.Background(), harvest.Link(srv.URL+"/products/missing"))
	var extractErr *harvest.RecordExtractionError
	if !errors.As(err, &extractErr) {
		t.Errorf("expected RecordExtractionError, got %v", err)
	}
}
