package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// ColumnType is a portable column type. Dialects map it to SQL.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeDecimal   ColumnType = "decimal"
	TypeBoolean   ColumnType = "boolean"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
)

// Infer builds a table from the union of record fields, in first-seen
// order. Column names are produced by rename; fields that rename to an
// existing column get a numeric suffix.
func Infer(name string, records []harvest.Record, rename func(string) string) Table {
	if rename == nil {
		rename = func(s string) string { return s }
	}

	t := Table{Name: name}
	index := make(map[string]int)
	used := make(map[string]bool)

	for _, r := range records {
		for _, f := range r.Fields() {
			i, ok := index[f.Name]
			if !ok {
				col := rename(f.Name)
				for n := 2; used[col]; n++ {
					col = fmt.Sprintf("%s_%d", rename(f.Name), n)
				}
				used[col] = true
				i = len(t.Columns)
				index[f.Name] = i
				t.Columns = append(t.Columns, Column{Name: col, Source: f.Name})
			}
			t.Columns[i].Type = widen(t.Columns[i].Type, typeOf(f.Value))
		}
	}

	for i := range t.Columns {
		if t.Columns[i].Type == "" {
			t.Columns[i].Type = TypeText
		}
	}
	return t
}

func typeOf(v any) ColumnType {
	switch x := v.(type) {
	case nil:
		return ""
	case *time.Time:
		if x == nil {
			return ""
		}
		return timeType(*x)
	case time.Time:
		return timeType(x)
	case int, int32, int64:
		return TypeInteger
	case float32, float64:
		return TypeReal
	case decimal.Decimal:
		return TypeDecimal
	case bool:
		return TypeBoolean
	default:
		return TypeText
	}
}

func timeType(t time.Time) ColumnType {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return TypeDate
	}
	return TypeTimestamp
}

// widen returns the narrowest type that holds values of both a and b.
func widen(a, b ColumnType) ColumnType {
	switch {
	case a == "":
		return b
	case b == "" || a == b:
		return a
	case numeric(a) && numeric(b):
		if a == TypeDecimal || b == TypeDecimal {
			return TypeDecimal
		}
		return TypeReal
	case (a == TypeDate && b == TypeTimestamp) || (a == TypeTimestamp && b == TypeDate):
		return TypeTimestamp
	default:
		return TypeText
	}
}

func numeric(t ColumnType) bool {
	return t == TypeInteger || t == TypeReal || t == TypeDecimal
}

// Convert prepares a record value for a column of type typ. Nil stays nil
// so missing identifiers are stored as NULL.
func Convert(v any, typ ColumnType) any {
	if p, ok := v.(*time.Time); ok {
		if p == nil {
			return nil
		}
		v = *p
	}
	if v == nil {
		return nil
	}

	switch typ {
	case TypeText:
		return harvest.FormatValue(v)
	case TypeDecimal:
		switch x := v.(type) {
		case decimal.Decimal:
			return x.String()
		case int64:
			return decimal.NewFromInt(x).String()
		case int:
			return decimal.NewFromInt(int64(x)).String()
		case float64:
			return decimal.NewFromFloat(x).String()
		}
	case TypeReal:
		switch x := v.(type) {
		case int64:
			return float64(x)
		case int:
			return float64(x)
		}
	case TypeDate:
		if t, ok := v.(time.Time); ok {
			return t.Format(time.DateOnly)
		}
	}
	return v
}
