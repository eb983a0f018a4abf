// Package normalize converts scraped text into typed column values for
// relational sinks.
package normalize

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"github.com/shopspring/decimal"
)

// ErrNotNumeric is returned for values that cannot be read as a number.
var ErrNotNumeric = errors.New("not numeric")

var (
	moneyStripper = strings.NewReplacer("$", "", ",", "", "+", "", " ", "")
	textStripper  = bluemonday.StrictPolicy()
	spaceRun      = regexp.MustCompile(`\s+`)
	sizePattern   = regexp.MustCompile(`(?i)^\s*([\d.]+)"?\s*l\s*x\s*([\d.]+)"?\s*w\s*x\s*([\d.]+)"?\s*(?:h)?\s*$`)
)

// Money parses a currency amount such as "$1,234.50". Empty input is zero.
func Money(s string) (decimal.Decimal, error) {
	cleaned := moneyStripper.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money %q: %w", s, ErrNotNumeric)
	}
	return d, nil
}

// LastPrice returns the last amount in a price cell. A discounted listing
// shows "$3.00 $1.50"; the sale price is the one that applies.
func LastPrice(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

// Stock parses a stock quantity. "1000+" is the catalog's open-ended top
// bucket and reads as 1000. Empty input is zero.
func Stock(s string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return 0, nil
	}
	cleaned = strings.TrimSuffix(cleaned, "+")
	for _, r := range cleaned {
		if !unicode.IsDigit(r) {
			return 0, fmt.Errorf("stock %q: %w", s, ErrNotNumeric)
		}
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("stock %q: %w", s, ErrNotNumeric)
	}
	return n, nil
}

// Dimensions holds a parsed book size in inches.
type Dimensions struct {
	Length float64
	Width  float64
	Height float64
}

// Size parses `8.25" l x 5.5" w x 1.1" h`. Unparsable sizes return zero
// dimensions and false.
func Size(s string) (Dimensions, bool) {
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return Dimensions{}, false
	}
	var vals [3]float64
	for i := range vals {
		v, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return Dimensions{}, false
		}
		vals[i] = v
	}
	return Dimensions{Length: vals[0], Width: vals[1], Height: vals[2]}, true
}

// Date parses an ISO date. Empty or malformed input returns nil.
func Date(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}

// ID returns nil for blank identifiers so they are stored as NULL.
func ID(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

// Count parses an integer field, defaulting missing values to zero.
func Count(s string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", s, ErrNotNumeric)
	}
	return n, nil
}

// Text strips markup and entities from scraped text and collapses runs of
// whitespace.
func Text(s string) string {
	s = html.UnescapeString(textStripper.Sanitize(s))
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Column turns a source field name into a relational column name:
// "customer.id" becomes "CUSTOMER_ID", "Book Title" becomes "BOOK_TITLE".
func Column(name string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}
