package cursor

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

func TestResolve(t *testing.T) {
	base, err := url.Parse("https://api.example.com/v1/items/")
	require.NoError(t, err)

	tests := []struct {
		name string
		next string
		want string
	}{
		{"leading slash", "/page/3", "https://api.example.com/v1/items/page/3"},
		{"bare path", "page/2", "https://api.example.com/v1/items/page/2"},
		{"query only", "?page=4", "https://api.example.com/v1/items/?page=4"},
		{"path and query", "/page/5?limit=10", "https://api.example.com/v1/items/page/5?limit=10"},
		{"absolute", "https://other.example.com/x?page=2", "https://other.example.com/x?page=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(base, tt.next)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestURLCursor_AnchorsToBaseAcrossHops(t *testing.T) {
	ctx := context.Background()
	c, err := NewURLCursor("https://api.example.com/v1/items/")
	require.NoError(t, err)

	c.Observe("/page/2")
	tok, err := c.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/items/page/2", tok.URL)

	c.Observe("/page/3")
	tok, err = c.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1/items/page/3", tok.URL)
	assert.Equal(t, 3, tok.Number)
}

func TestURLCursor_NoNextIsExhausted(t *testing.T) {
	ctx := context.Background()
	c, err := NewURLCursor("https://api.example.com/v1/items/")
	require.NoError(t, err)

	c.Observe("")
	more, err := c.HasNext(ctx)
	require.NoError(t, err)
	assert.False(t, more)

	_, err = c.Advance(ctx)
	assert.ErrorIs(t, err, harvest.ErrExhausted)
}

func TestURLCursor_RepeatedPageIsExhausted(t *testing.T) {
	ctx := context.Background()
	c, err := NewURLCursor("https://api.example.com/v1/items/")
	require.NoError(t, err)

	c.Observe("https://api.example.com/v1/items/")
	_, err = c.Advance(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, harvest.ErrExhausted))
	assert.Contains(t, err.Error(), "repeats")
}

func TestURLCursor_RejectsRelativeBase(t *testing.T) {
	_, err := NewURLCursor("/v1/items")
	assert.Error(t, err)
}

func TestURLCursor_Seek(t *testing.T) {
	c, err := NewURLCursor("https://api.example.com/v1/items/")
	require.NoError(t, err)

	tok := harvest.PageToken{Number: 7, URL: "https://api.example.com/v1/items/page/7"}
	require.NoError(t, c.Seek(context.Background(), tok))
	assert.Equal(t, tok, c.Current())

	assert.Error(t, c.Seek(context.Background(), harvest.PageToken{Number: 2}))
}

func TestSinceIDCursor_FirstPage(t *testing.T) {
	c, err := NewSinceIDCursor("https://shop.example.com/admin/api/2023-10/orders.json?status=any", 2)
	require.NoError(t, err)

	tok := c.Current()
	assert.Equal(t, 1, tok.Number)
	assert.Equal(t, "0", tok.Watermark)

	u, err := url.Parse(tok.URL)
	require.NoError(t, err)
	assert.Equal(t, "any", u.Query().Get("status"))
	assert.Equal(t, "2", u.Query().Get("limit"))
	assert.Equal(t, "0", u.Query().Get("since_id"))
}

func TestSinceIDCursor_AdvancesToHighestID(t *testing.T) {
	ctx := context.Background()
	c, err := NewSinceIDCursor("https://shop.example.com/products.json", 3)
	require.NoError(t, err)

	c.Observe([]int64{10, 30, 20})
	more, err := c.HasNext(ctx)
	require.NoError(t, err)
	require.True(t, more)

	tok, err := c.Advance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "30", tok.Watermark)
	assert.Equal(t, 2, tok.Number)
}

func TestSinceIDCursor_ShortPageEnds(t *testing.T) {
	ctx := context.Background()
	c, err := NewSinceIDCursor("https://shop.example.com/products.json", 3)
	require.NoError(t, err)

	c.Observe([]int64{1, 2})
	more, err := c.HasNext(ctx)
	require.NoError(t, err)
	assert.False(t, more)

	_, err = c.Advance(ctx)
	assert.ErrorIs(t, err, harvest.ErrExhausted)
}

func TestSinceIDCursor_WatermarkNeverMovesBack(t *testing.T) {
	ctx := context.Background()
	c, err := NewSinceIDCursor("https://shop.example.com/products.json", 2)
	require.NoError(t, err)

	c.Observe([]int64{5, 6})
	_, err = c.Advance(ctx)
	require.NoError(t, err)

	// A misbehaving API returning older ids must not rewind the cursor.
	c.Observe([]int64{3, 4})
	_, err = c.Advance(ctx)
	require.ErrorIs(t, err, harvest.ErrExhausted)
	assert.Contains(t, err.Error(), "did not advance")
	assert.Equal(t, "6", c.Current().Watermark)
}

func TestSinceIDCursor_Seek(t *testing.T) {
	c, err := NewSinceIDCursor("https://shop.example.com/products.json", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, c.Limit())

	require.NoError(t, c.Seek(context.Background(), harvest.PageToken{Number: 4, Watermark: "99"}))
	assert.Equal(t, "99", c.Current().Watermark)
	assert.Contains(t, c.Current().URL, "since_id=99")

	assert.Error(t, c.Seek(context.Background(), harvest.PageToken{Watermark: "abc"}))
}

func TestSingle(t *testing.T) {
	c := NewSingle("https://docs.example.com/sheet.csv")
	assert.Equal(t, 1, c.Current().Number)

	more, err := c.HasNext(context.Background())
	require.NoError(t, err)
	assert.False(t, more)

	_, err = c.Advance(context.Background())
	assert.ErrorIs(t, err, harvest.ErrExhausted)
}
