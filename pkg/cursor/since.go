package cursor

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// DefaultLimit is the page size requested by SinceIDCursor.
const DefaultLimit = 250

// SinceIDCursor pages by watermark: each request asks for records with an
// id greater than the highest id of the previous page. The watermark only
// moves forward.
type SinceIDCursor struct {
	mu        sync.Mutex
	base      *url.URL
	limit     int
	current   harvest.PageToken
	watermark int64
	highest   int64
	count     int
	observed  bool
}

// NewSinceIDCursor creates a cursor starting at since_id=0.
func NewSinceIDCursor(base string, limit int) (*SinceIDCursor, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("base URL must be absolute: %q", base)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	c := &SinceIDCursor{base: u, limit: limit}
	c.current = c.token(1, 0)
	return c, nil
}

// Limit returns the requested page size.
func (c *SinceIDCursor) Limit() int {
	return c.limit
}

// Observe records the ids of the records on the page just fetched.
func (c *SinceIDCursor) Observe(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observed = true
	c.count = len(ids)
	c.highest = c.watermark
	for _, id := range ids {
		if id > c.highest {
			c.highest = id
		}
	}
}

// Current returns the page last reached.
func (c *SinceIDCursor) Current() harvest.PageToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// HasNext reports whether the last page was full. A short or empty page is
// the end of the result set.
func (c *SinceIDCursor) HasNext(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.observed && c.count > 0 && c.count >= c.limit, nil
}

// Advance moves the watermark to the highest id seen.
func (c *SinceIDCursor) Advance(_ context.Context) (harvest.PageToken, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.observed || c.count == 0 || c.count < c.limit {
		return harvest.PageToken{}, harvest.ErrExhausted
	}
	if c.highest <= c.watermark {
		return harvest.PageToken{}, fmt.Errorf("%w: watermark did not advance past %d", harvest.ErrExhausted, c.watermark)
	}

	c.watermark = c.highest
	c.current = c.token(c.current.Number+1, c.watermark)
	c.observed = false
	c.count = 0
	return c.current, nil
}

// Seek resumes from a saved watermark.
func (c *SinceIDCursor) Seek(_ context.Context, token harvest.PageToken) error {
	w, err := strconv.ParseInt(token.Watermark, 10, 64)
	if err != nil || w < 0 {
		return fmt.Errorf("invalid watermark %q", token.Watermark)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.watermark = w
	c.highest = w
	c.observed = false
	c.count = 0
	c.current = c.token(token.Number, w)
	return nil
}

func (c *SinceIDCursor) token(number int, since int64) harvest.PageToken {
	u := *c.base
	q := u.Query()
	q.Set("limit", strconv.Itoa(c.limit))
	q.Set("since_id", strconv.FormatInt(since, 10))
	u.RawQuery = q.Encode()
	return harvest.PageToken{
		Number:    number,
		URL:       u.String(),
		Watermark: strconv.FormatInt(since, 10),
	}
}
