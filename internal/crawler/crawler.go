// Package crawler walks HTML listings: page cursors that follow a "next"
// control, listing fetchers that collect detail links, and enrichers that
// turn a detail page into a record.
package crawler

import (
	"fmt"
	"time"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// DefaultWait bounds every wait for a page to load or render.
const DefaultWait = 30 * time.Second

// ExtractFunc builds a record from a detail page. It returns a
// *harvest.RecordExtractionError when required structure is missing.
type ExtractFunc func(html, pageURL string) (harvest.Record, error)

// Config describes a listing site.
type Config struct {
	StartURL      string
	ItemSelector  string // Links to detail pages within the listing
	NextSelector  string // The "next page" control
	ListingMarker string // Present once a listing page has rendered
	DetailMarker  string // Present once a detail page has rendered
	Wait          time.Duration
}

// Validate checks the fields every listing mode needs.
func (c Config) Validate() error {
	switch {
	case c.StartURL == "":
		return fmt.Errorf("start URL is required")
	case c.ItemSelector == "":
		return fmt.Errorf("item selector is required")
	case c.NextSelector == "":
		return fmt.Errorf("next selector is required")
	}
	return nil
}

func (c Config) wait() time.Duration {
	if c.Wait <= 0 {
		return DefaultWait
	}
	return c.Wait
}
