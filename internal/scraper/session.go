package scraper

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a browser wait runs out of time.
var ErrTimeout = errors.New("timed out waiting for page")

// Session is one live browser tab. Its position (the loaded page) is state
// shared by every caller, so a Session must not be used concurrently.
type Session interface {
	// Navigate loads url in the tab.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until selector is visible or timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Exists reports whether selector currently matches, without waiting.
	Exists(ctx context.Context, selector string) (bool, error)

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Back navigates one step back in history.
	Back(ctx context.Context) error

	// Location returns the URL currently loaded.
	Location(ctx context.Context) (string, error)

	// HTML returns the current document markup.
	HTML(ctx context.Context) (string, error)

	// Close closes the tab.
	Close() error
}

// WaitForChange polls until the tab's location differs from previous and
// marker is present, or timeout elapses. It returns the new location.
func WaitForChange(ctx context.Context, s Session, previous, marker string, timeout, interval time.Duration) (string, error) {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		loc, err := s.Location(ctx)
		if err != nil {
			return "", err
		}
		if loc != previous {
			ok, err := s.Exists(ctx, marker)
			if err != nil {
				return "", err
			}
			if ok {
				return loc, nil
			}
		}
		if time.Now().After(deadline) {
			return loc, ErrTimeout
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
