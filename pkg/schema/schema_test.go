package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

func TestInfer_UnionInFirstSeenOrder(t *testing.T) {
	records := []harvest.Record{
		harvest.NewRecord(
			harvest.Field{Name: "id", Value: int64(1)},
			harvest.Field{Name: "title", Value: "Emma"},
		),
		harvest.NewRecord(
			harvest.Field{Name: "id", Value: int64(2)},
			harvest.Field{Name: "customer.id", Value: nil},
			harvest.Field{Name: "price", Value: decimal.RequireFromString("1.50")},
		),
	}

	table := Infer("BOOKS", records, strings.ToUpper)

	want := []string{"ID", "TITLE", "CUSTOMER.ID", "PRICE"}
	got := table.Names()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Names() = %v, want %v", got, want)
	}

	types := map[string]ColumnType{}
	for _, c := range table.Columns {
		types[c.Name] = c.Type
	}
	if types["ID"] != TypeInteger {
		t.Errorf("ID type = %s, want integer", types["ID"])
	}
	if types["CUSTOMER.ID"] != TypeText {
		t.Errorf("all-null column should default to text, got %s", types["CUSTOMER.ID"])
	}
	if types["PRICE"] != TypeDecimal {
		t.Errorf("PRICE type = %s, want decimal", types["PRICE"])
	}
}

func TestInfer_WidensMixedTypes(t *testing.T) {
	records := []harvest.Record{
		harvest.NewRecord(harvest.Field{Name: "n", Value: int64(1)}, harvest.Field{Name: "v", Value: "x"}),
		harvest.NewRecord(harvest.Field{Name: "n", Value: 2.5}, harvest.Field{Name: "v", Value: int64(3)}),
	}
	table := Infer("T", records, nil)

	if table.Columns[0].Type != TypeReal {
		t.Errorf("integer+real should widen to real, got %s", table.Columns[0].Type)
	}
	if table.Columns[1].Type != TypeText {
		t.Errorf("text+integer should widen to text, got %s", table.Columns[1].Type)
	}
}

func TestInfer_SuffixesCollidingColumns(t *testing.T) {
	records := []harvest.Record{
		harvest.NewRecord(
			harvest.Field{Name: "customer.id", Value: "1"},
			harvest.Field{Name: "customer_id", Value: "1"},
		),
	}
	table := Infer("T", records, func(s string) string {
		return strings.ToUpper(strings.ReplaceAll(s, ".", "_"))
	})

	if got := strings.Join(table.Names(), ","); got != "CUSTOMER_ID,CUSTOMER_ID_2" {
		t.Errorf("Names() = %s", got)
	}
	if err := table.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestTable_Row(t *testing.T) {
	published := time.Date(2021, 3, 9, 0, 0, 0, 0, time.UTC)
	table := Table{Name: "BOOKS", Columns: []Column{
		{Name: "ISBN", Type: TypeText, Source: "isbn"},
		{Name: "STOCK", Type: TypeInteger, Source: "stock"},
		{Name: "PRICE", Type: TypeDecimal, Source: "price"},
		{Name: "PUBLISHED", Type: TypeDate, Source: "published"},
		{Name: "CATEGORIES", Type: TypeText, Source: "categories"},
	}}

	row := table.Row(harvest.NewRecord(
		harvest.Field{Name: "isbn", Value: nil},
		harvest.Field{Name: "stock", Value: int64(1000)},
		harvest.Field{Name: "price", Value: decimal.RequireFromString("2.75")},
		harvest.Field{Name: "published", Value: &published},
		harvest.Field{Name: "categories", Value: []string{"Fiction", "Romance"}},
	))

	if row[0] != nil {
		t.Errorf("missing identifier should be nil, got %v", row[0])
	}
	if row[1] != int64(1000) {
		t.Errorf("stock = %v", row[1])
	}
	if row[2] != "2.75" {
		t.Errorf("price = %v", row[2])
	}
	if row[3] != "2021-03-09" {
		t.Errorf("published = %v", row[3])
	}
	if row[4] != "Fiction, Romance" {
		t.Errorf("categories = %v", row[4])
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name  string
		table Table
		want  string
	}{
		{"missing name", Table{Columns: []Column{{Name: "A", Type: TypeText}}}, "is required"},
		{"no columns", Table{Name: "T"}, "Columns"},
		{"bad type", Table{Name: "T", Columns: []Column{{Name: "A", Type: "blob"}}}, "must be one of"},
		{"duplicate", Table{Name: "T", Columns: []Column{{Name: "a", Type: TypeText}, {Name: "A", Type: TypeText}}}, "duplicate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.yaml")
	content := `name: BOOKS_PURCHASED
columns:
  - name: ISBN
    type: text
  - name: PURCHASE_PRICE
    type: decimal
    source: Purchase Price
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	table, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if table.Columns[1].Field() != "Purchase Price" {
		t.Errorf("Field() = %q", table.Columns[1].Field())
	}
	if table.Columns[0].Field() != "ISBN" {
		t.Errorf("Field() should default to the column name, got %q", table.Columns[0].Field())
	}
}

func TestFromFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.toml")
	if err := os.WriteFile(path, []byte("name = 'x'"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := FromFile(path); err == nil {
		t.Error("expected error for unsupported format")
	}
}
