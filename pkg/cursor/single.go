package cursor

import (
	"context"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// Single is a result set of exactly one page: a spreadsheet export, a CSV
// file, or a single-object API resource.
type Single struct {
	token harvest.PageToken
}

// NewSingle creates a cursor over the one page at ref.
func NewSingle(ref string) *Single {
	return &Single{token: harvest.PageToken{Number: 1, URL: ref}}
}

// Current returns the only page.
func (c *Single) Current() harvest.PageToken {
	return c.token
}

// HasNext is always false.
func (c *Single) HasNext(context.Context) (bool, error) {
	return false, nil
}

// Advance always reports exhaustion.
func (c *Single) Advance(context.Context) (harvest.PageToken, error) {
	return harvest.PageToken{}, harvest.ErrExhausted
}
