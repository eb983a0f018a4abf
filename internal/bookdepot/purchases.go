package bookdepot

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/harvest/internal/normalize"
	"github.com/jmylchreest/harvest/pkg/harvest"
	"github.com/jmylchreest/harvest/pkg/schema"
)

// PurchasesTableName is the table the purchase sheet is loaded into.
const PurchasesTableName = "BOOKS_PURCHASED"

// PurchasesWorksheet is the default worksheet of the purchase sheet.
const PurchasesWorksheet = "books"

// Purchase sheet headings and the columns they load into.
var purchaseColumns = []struct {
	heading string
	column  string
	typ     schema.ColumnType
}{
	{"ISBN", "ISBN", schema.TypeText},
	{"Genre", "GENRE", schema.TypeText},
	{"Book Title", "BOOK_TITLE", schema.TypeText},
	{"Authors", "AUTHORS", schema.TypeText},
	{"Month", "MONTH", schema.TypeText},
	{"Year", "YEAR", schema.TypeInteger},
	{"Purchase Price", "PURCHASE_PRICE", schema.TypeDecimal},
	{"Count to Buy", "COUNT_TO_BUY", schema.TypeInteger},
	{"Book Url", "BOOK_URL", schema.TypeText},
	{"Purchase Quantity", "PURCHASE_QUANTITY", schema.TypeInteger},
}

// PurchasesTable returns the relational schema of the purchase sheet.
func PurchasesTable() schema.Table {
	t := schema.Table{Name: PurchasesTableName}
	for _, c := range purchaseColumns {
		t.Columns = append(t.Columns, schema.Column{Name: c.column, Type: c.typ})
	}
	return t
}

// NormalizePurchase keeps the known sheet columns under their table names.
// Headings are matched case-insensitively. Blank counts and prices load as
// zero and a blank ISBN as NULL; other non-numeric values are rejected.
func NormalizePurchase(r harvest.Record) (harvest.Record, error) {
	byHeading := make(map[string]string, r.Len())
	for _, f := range r.Fields() {
		byHeading[strings.ToLower(strings.TrimSpace(f.Name))] = harvest.FormatValue(f.Value)
	}

	fields := make([]harvest.Field, 0, len(purchaseColumns))
	for _, c := range purchaseColumns {
		raw := byHeading[strings.ToLower(c.heading)]
		var v any
		switch {
		case c.column == "ISBN":
			v = normalize.ID(raw)
		case c.typ == schema.TypeInteger:
			n, err := normalize.Count(raw)
			if err != nil {
				return harvest.Record{}, &harvest.RecordExtractionError{Ref: r.String("ISBN"), Field: c.column, Err: err}
			}
			v = n
		case c.typ == schema.TypeDecimal:
			d, err := normalize.Money(raw)
			if err != nil {
				return harvest.Record{}, &harvest.RecordExtractionError{Ref: r.String("ISBN"), Field: c.column, Err: err}
			}
			v = d
		default:
			v = strings.TrimSpace(raw)
		}
		fields = append(fields, harvest.Field{Name: c.column, Value: v})
	}
	return harvest.NewRecord(fields...), nil
}

// MissingPurchaseHeadings lists the expected headings absent from names.
func MissingPurchaseHeadings(names []string) error {
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[strings.ToLower(strings.TrimSpace(n))] = true
	}
	var missing []string
	for _, c := range purchaseColumns {
		if !have[strings.ToLower(c.heading)] {
			missing = append(missing, c.heading)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("purchase sheet is missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
