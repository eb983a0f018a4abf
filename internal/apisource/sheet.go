package apisource

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// SheetURL returns the CSV export URL of a worksheet in a published
// spreadsheet.
func SheetURL(spreadsheetID, worksheet string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/gviz/tq?tqx=out:csv&sheet=%s",
		url.PathEscape(spreadsheetID), url.QueryEscape(worksheet))
}

// SheetPage fetches a worksheet CSV export as one page of records.
type SheetPage struct {
	client *Client
}

// NewSheetPage creates a fetcher.
func NewSheetPage(client *Client) *SheetPage {
	return &SheetPage{client: client}
}

// FetchPage implements harvest.RecordFetcher.
func (p *SheetPage) FetchPage(ctx context.Context, token harvest.PageToken) ([]harvest.RecordHandle, error) {
	body, err := p.client.Get(ctx, token.URL)
	if err != nil {
		return nil, err
	}
	if looksLikeHTML(body) {
		return nil, fmt.Errorf("%s: sheet is not published (got an HTML page)", token.URL)
	}

	records, err := output.ReadCSV(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", token.URL, err)
	}
	handles := make([]harvest.RecordHandle, len(records))
	for i, r := range records {
		handles[i] = harvest.Completed(fmt.Sprintf("%s#row=%d", token.URL, i+2), r)
	}
	return handles, nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(strings.TrimSpace(string(body[:min(len(body), 64)])))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}
