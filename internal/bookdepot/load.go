package bookdepot

import (
	"github.com/jmylchreest/harvest/internal/normalize"
	"github.com/jmylchreest/harvest/pkg/harvest"
	"github.com/jmylchreest/harvest/pkg/schema"
)

// TableName is the relational table the harvested CSV is loaded into.
const TableName = "BOOKDEPOT_FICTION_ROMANCE"

// Table returns the relational schema of the loaded catalog.
func Table() schema.Table {
	return schema.Table{
		Name: TableName,
		Columns: []schema.Column{
			{Name: "ISBN", Type: schema.TypeText},
			{Name: "BOOK_TITLE", Type: schema.TypeText},
			{Name: "AUTHOR", Type: schema.TypeText},
			{Name: "STOCK_QUANTITY", Type: schema.TypeInteger},
			{Name: "CATEGORIES", Type: schema.TypeText},
			{Name: "LENGTH", Type: schema.TypeReal},
			{Name: "WIDTH", Type: schema.TypeReal},
			{Name: "HEIGHT", Type: schema.TypeReal},
			{Name: "SALES_PRICE", Type: schema.TypeDecimal},
			{Name: "PUBLISHER", Type: schema.TypeText},
			{Name: "BOOK_COVER", Type: schema.TypeText},
			{Name: "BINDING", Type: schema.TypeText},
			{Name: "PUBLISH_DATE", Type: schema.TypeDate},
			{Name: "URL", Type: schema.TypeText},
		},
	}
}

// Normalize turns a harvested CSV row into a row of Table. Sizes that
// cannot be parsed load as zero dimensions; a blank ISBN loads as NULL.
func Normalize(r harvest.Record) (harvest.Record, error) {
	ref := r.String("url")

	stock, err := normalize.Stock(r.String("stock"))
	if err != nil {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: ref, Field: "stock", Err: err}
	}
	price, err := normalize.Money(normalize.LastPrice(r.String("price")))
	if err != nil {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: ref, Field: "price", Err: err}
	}
	size, _ := normalize.Size(r.String("size"))

	return harvest.NewRecord(
		harvest.Field{Name: "ISBN", Value: normalize.ID(r.String("isbn"))},
		harvest.Field{Name: "BOOK_TITLE", Value: r.String("title")},
		harvest.Field{Name: "AUTHOR", Value: r.String("author")},
		harvest.Field{Name: "STOCK_QUANTITY", Value: stock},
		harvest.Field{Name: "CATEGORIES", Value: r.String("categories")},
		harvest.Field{Name: "LENGTH", Value: size.Length},
		harvest.Field{Name: "WIDTH", Value: size.Width},
		harvest.Field{Name: "HEIGHT", Value: size.Height},
		harvest.Field{Name: "SALES_PRICE", Value: price},
		harvest.Field{Name: "PUBLISHER", Value: r.String("publisher")},
		harvest.Field{Name: "BOOK_COVER", Value: r.String("cover")},
		harvest.Field{Name: "BINDING", Value: r.String("binding")},
		harvest.Field{Name: "PUBLISH_DATE", Value: normalize.Date(r.String("publication_date"))},
		harvest.Field{Name: "URL", Value: ref},
	), nil
}
