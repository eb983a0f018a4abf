// Package bookdepot harvests the BookDepot catalog: a paged listing of
// books, each with a detail page holding bibliographic data and stock.
package bookdepot

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/harvest/internal/crawler"
	"github.com/jmylchreest/harvest/internal/normalize"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// Source is the harvest source name.
const Source = "bookdepot"

// ListingURL is the fiction/romance listing sorted by relevance, 96 per page.
const ListingURL = "https://www.bookdepot.com/Store/Browse?Nc=31&Ns=1393&size=96&sort=relevance_1"

// Selectors for the listing and detail pages.
const (
	ListingMarker = "div.grid-item"
	ItemSelector  = "div.grid-item h2 a"
	NextSelector  = `li a[aria-label="Next"]:not(.disabled)`
	DetailMarker  = "div#book-cover img"

	salePriceSelector = `span[itemprop="price"] span:nth-child(2)`
	priceSelector     = `span[itemprop="price"]`
	biblioRows        = "table.tbl-biblio tr"
)

// Fields is the column order of the append-mode CSV.
var Fields = []string{
	"cover", "title", "author", "binding", "list_price", "price",
	"stock", "isbn", "publisher", "publication_date", "size", "categories", "url",
}

// Crawl returns the crawler configuration for the listing, starting at start
// (ListingURL when empty).
func Crawl(start string) crawler.Config {
	if start == "" {
		start = ListingURL
	}
	return crawler.Config{
		StartURL:      start,
		ItemSelector:  ItemSelector,
		NextSelector:  NextSelector,
		ListingMarker: ListingMarker,
		DetailMarker:  DetailMarker,
	}
}

// biblio labels, lowercased without the trailing colon.
var biblioLabels = map[string][]string{
	"list_price":       {"list price"},
	"stock":            {"quantity available", "in stock", "stock"},
	"publication_date": {"published", "publication date", "pub date"},
	"size":             {"size", "dimensions"},
}

// Parse extracts a book from its detail page. Missing required elements
// and unreadable stock values are reported as a
// *harvest.RecordExtractionError naming the field.
func Parse(html, pageURL string) (harvest.Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: pageURL, Err: err}
	}

	missing := func(field string) error {
		return &harvest.RecordExtractionError{Ref: pageURL, Field: field, Err: errors.New("element not found")}
	}
	required := func(field, selector string) (string, error) {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			return "", missing(field)
		}
		return normalize.Text(sel.Text()), nil
	}

	cover, ok := doc.Find(DetailMarker).First().Attr("src")
	if !ok {
		return harvest.Record{}, missing("cover")
	}

	values := map[string]string{
		"cover": absolute(pageURL, cover),
		"price": Price(doc),
		"url":   pageURL,
	}
	for field, selector := range map[string]string{
		"title":     `h4[itemprop="name"]`,
		"author":    `span[itemprop="author"]`,
		"binding":   `span[itemprop="bookFormat"]`,
		"isbn":      `span[itemprop="isbn"]`,
		"publisher": `span[itemprop="publisher"]`,
	} {
		if values[field], err = required(field, selector); err != nil {
			return harvest.Record{}, err
		}
	}

	biblio := biblioTable(doc)
	for field, labels := range biblioLabels {
		v, ok := lookup(biblio, labels)
		if !ok {
			return harvest.Record{}, missing(field)
		}
		values[field] = v
	}

	// An empty cell is unreadable here; only the relational load defaults it to 0.
	if values["stock"] == "" {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: pageURL, Field: "stock",
			Err: fmt.Errorf("stock is empty: %w", normalize.ErrNotNumeric)}
	}
	stock, err := normalize.Stock(values["stock"])
	if err != nil {
		return harvest.Record{}, &harvest.RecordExtractionError{Ref: pageURL, Field: "stock", Err: err}
	}

	var categories []string
	doc.Find(`span[itemprop="genre"]`).Each(func(_ int, s *goquery.Selection) {
		if c := normalize.Text(s.Text()); c != "" {
			categories = append(categories, c)
		}
	})

	fields := make([]harvest.Field, 0, len(Fields))
	for _, name := range Fields {
		var v any = values[name]
		switch name {
		case "stock":
			v = stock
		case "categories":
			v = categories
		}
		fields = append(fields, harvest.Field{Name: name, Value: v})
	}
	return harvest.NewRecord(fields...), nil
}

// Price applies the catalog's price rule: a sale price (the second span
// inside the price element) wins over the listed price; with neither the
// price is empty.
func Price(doc *goquery.Document) string {
	if sale := doc.Find(salePriceSelector).First(); sale.Length() > 0 {
		return normalize.Text(sale.Text())
	}
	if listed := doc.Find(priceSelector).First(); listed.Length() > 0 {
		return normalize.Text(listed.Text())
	}
	return ""
}

func biblioTable(doc *goquery.Document) map[string]string {
	rows := make(map[string]string)
	doc.Find(biblioRows).Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("th, td")
		if cells.Length() < 2 {
			return
		}
		label := strings.ToLower(strings.TrimSuffix(normalize.Text(cells.First().Text()), ":"))
		rows[strings.TrimSpace(label)] = normalize.Text(cells.Eq(1).Text())
	})
	return rows
}

func lookup(rows map[string]string, labels []string) (string, bool) {
	for _, l := range labels {
		if v, ok := rows[l]; ok {
			return v, true
		}
	}
	return "", false
}

func absolute(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
