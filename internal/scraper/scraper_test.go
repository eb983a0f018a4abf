package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStaticFetcher_Fetch(t *testing.T) {
	var gotUA, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotHeader = r.Header.Get("X-Test")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title> Browse </title></head><body>ok</body></html>`))
	}))
	defer srv.Close()

	f := NewStaticFetcher(FetcherConfig{UserAgent: "harvest-test"})
	page, err := f.Fetch(context.Background(), srv.URL, FetchOptions{Headers: map[string]string{"X-Test": "1"}})
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if page.StatusCode != 200 {
		t.Errorf("StatusCode = %d", page.StatusCode)
	}
	if page.Title != "Browse" {
		t.Errorf("Title = %q", page.Title)
	}
	if gotUA != "harvest-test" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if gotHeader != "1" {
		t.Errorf("X-Test header = %q", gotHeader)
	}
	if f.Type() != "static" {
		t.Errorf("Type() = %s", f.Type())
	}
}

func TestStaticFetcher_RepeatedFetch(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer srv.Close()

	f := NewStaticFetcher(FetcherConfig{})
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), srv.URL, FetchOptions{}); err != nil {
			t.Fatal(err)
		}
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want 2", hits)
	}
}

func TestStaticFetcher_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewStaticFetcher(FetcherConfig{}).Fetch(context.Background(), srv.URL, FetchOptions{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusServiceUnavailable {
		t.Errorf("Code = %d", statusErr.Code)
	}
}

func TestNewFetcher_UnknownMode(t *testing.T) {
	if _, err := NewFetcher("auto", FetcherConfig{}); err == nil {
		t.Error("expected error for unknown mode")
	}
	f, err := NewFetcher(FetchModeStatic, FetcherConfig{})
	if err != nil || f.Type() != "static" {
		t.Errorf("NewFetcher(static) = %v, %v", f, err)
	}
}

func TestDefaultFetcherConfig(t *testing.T) {
	cfg := DefaultFetcherConfig()
	if !strings.HasPrefix(cfg.UserAgent, "harvest/") {
		t.Errorf("UserAgent = %q", cfg.UserAgent)
	}
	if cfg.Timeout != 30*time.Second || !cfg.Headless {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

// stepSession changes location after a number of Location calls.
type stepSession struct {
	Session
	locations []string
	calls     int
	marker    bool
}

func (s *stepSession) Location(context.Context) (string, error) {
	i := s.calls
	if i >= len(s.locations) {
		i = len(s.locations) - 1
	}
	s.calls++
	return s.locations[i], nil
}

func (s *stepSession) Exists(context.Context, string) (bool, error) {
	return s.marker, nil
}

func TestWaitForChange(t *testing.T) {
	s := &stepSession{locations: []string{"p1", "p1", "p2"}, marker: true}
	loc, err := WaitForChange(context.Background(), s, "p1", "div.grid-item", time.Second, time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForChange() error = %v", err)
	}
	if loc != "p2" {
		t.Errorf("location = %q", loc)
	}
}

func TestWaitForChange_Timeout(t *testing.T) {
	s := &stepSession{locations: []string{"p1"}, marker: true}
	_, err := WaitForChange(context.Background(), s, "p1", "div.grid-item", 5*time.Millisecond, time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestWaitForChange_MarkerMissing(t *testing.T) {
	s := &stepSession{locations: []string{"p2"}, marker: false}
	_, err := WaitForChange(context.Background(), s, "p1", "div.grid-item", 5*time.Millisecond, time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestWaitForChange_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &stepSession{locations: []string{"p1"}}
	_, err := WaitForChange(ctx, s, "p1", "x", time.Second, time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
