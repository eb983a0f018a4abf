package harvest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Field is a single named value in a Record.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered, immutable set of fields produced by a RecordFetcher
// or DetailEnricher. Methods that change a Record return a new one.
type Record struct {
	names  []string
	values map[string]any
}

// NewRecord creates a Record from fields in order. A repeated name keeps its
// first position and its last value.
func NewRecord(fields ...Field) Record {
	r := Record{
		names:  make([]string, 0, len(fields)),
		values: make(map[string]any, len(fields)),
	}
	for _, f := range fields {
		if _, ok := r.values[f.Name]; !ok {
			r.names = append(r.names, f.Name)
		}
		r.values[f.Name] = f.Value
	}
	return r
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.names)
}

// Names returns field names in order.
func (r Record) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Get returns the raw value of a field.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// String returns the field value formatted as text. Missing and nil fields
// are empty.
func (r Record) String(name string) string {
	v, ok := r.values[name]
	if !ok {
		return ""
	}
	return FormatValue(v)
}

// Fields returns the fields in order.
func (r Record) Fields() []Field {
	out := make([]Field, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, Field{Name: n, Value: r.values[n]})
	}
	return out
}

// Map returns a copy of the field values keyed by name.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// With returns a copy of r with name set to value. New names are appended.
func (r Record) With(name string, value any) Record {
	fields := r.Fields()
	return NewRecord(append(fields, Field{Name: name, Value: value})...)
}

// Without returns a copy of r with the named fields removed.
func (r Record) Without(names ...string) Record {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	fields := make([]Field, 0, len(r.names))
	for _, f := range r.Fields() {
		if !drop[f.Name] {
			fields = append(fields, f)
		}
	}
	return NewRecord(fields...)
}

// Rename returns a copy of r with every field name passed through fn.
func (r Record) Rename(fn func(string) string) Record {
	fields := r.Fields()
	for i := range fields {
		fields[i].Name = fn(fields[i].Name)
	}
	return NewRecord(fields...)
}

// FormatValue renders a field value the way sinks write it as text.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []string:
		return strings.Join(x, ", ")
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case decimal.Decimal:
		return x.String()
	case *time.Time:
		if x == nil {
			return ""
		}
		return FormatValue(*x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// RecordHandle references a record on a page. Complete handles carry the
// full Record; others carry only a Ref (usually a detail link) and must be
// enriched before they can be persisted.
type RecordHandle struct {
	Ref    string
	Record *Record
}

// Complete reports whether the handle already holds a full Record.
func (h RecordHandle) Complete() bool {
	return h.Record != nil
}

// Completed wraps a full Record in a handle.
func Completed(ref string, r Record) RecordHandle {
	return RecordHandle{Ref: ref, Record: &r}
}

// Link returns a handle that needs enrichment.
func Link(ref string) RecordHandle {
	return RecordHandle{Ref: ref}
}

// PageToken is a position in a paginated result set.
type PageToken struct {
	Number    int    `json:"number"`
	URL       string `json:"url,omitempty"`
	Watermark string `json:"watermark,omitempty"`
}

func (t PageToken) String() string {
	if t.Watermark != "" {
		return fmt.Sprintf("page %d (since %s)", t.Number, t.Watermark)
	}
	return fmt.Sprintf("page %d", t.Number)
}
