package apisource

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jmylchreest/harvest/pkg/cursor"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// CratejoyBase is the Cratejoy API root.
const CratejoyBase = "https://api.cratejoy.com/v1/"

// CratejoyEndpoints are the collections harvested by default.
var CratejoyEndpoints = []string{
	"subscriptions", "customers", "products", "orders", "inventory", "transactions", "shipments",
}

// CustomerSubscriptionsTable holds the subscription-to-customer links
// derived from the subscriptions endpoint.
const CustomerSubscriptionsTable = "CRATEJOY_CUSTOMER_SUBSCRIPTIONS"

// Subscription fields that nest whole related objects. They are dropped
// from the subscriptions table once the customer link is derived.
var subscriptionNesting = []string{"address", "billing", "customer", "product", "product_instance", "term"}

// CratejoyTable returns the table an endpoint is loaded into.
func CratejoyTable(endpoint string) string {
	return "CRATEJOY_" + strings.ToUpper(strings.Trim(endpoint, "/"))
}

// CratejoyPages lists the results of one Cratejoy page and reports the
// page's next reference to its cursor.
type CratejoyPages struct {
	client *Client
	cursor *cursor.URLCursor
}

// NewCratejoy creates the cursor and fetcher for endpoint under base
// (CratejoyBase when empty).
func NewCratejoy(client *Client, base, endpoint string) (*cursor.URLCursor, *CratejoyPages, error) {
	if base == "" {
		base = CratejoyBase
	}
	start := strings.TrimRight(base, "/") + "/" + strings.Trim(endpoint, "/") + "/"
	c, err := cursor.NewURLCursor(start)
	if err != nil {
		return nil, nil, err
	}
	return c, &CratejoyPages{client: client, cursor: c}, nil
}

// FetchPage implements harvest.RecordFetcher.
func (p *CratejoyPages) FetchPage(ctx context.Context, token harvest.PageToken) ([]harvest.RecordHandle, error) {
	body, err := p.client.Get(ctx, token.URL)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: response is not JSON", token.URL)
	}

	p.cursor.Observe(gjson.GetBytes(body, "next").String())
	return Handles(Records(body, "results"), token.URL), nil
}

// CustomerSubscription derives the subscription-to-customer link from a
// flattened subscription.
func CustomerSubscription(r harvest.Record) (harvest.Record, bool) {
	sub, ok := r.Get("id")
	if !ok || sub == nil {
		return harvest.Record{}, false
	}
	customer, _ := r.Get("customer.id")
	return harvest.NewRecord(
		harvest.Field{Name: "subscription_id", Value: sub},
		harvest.Field{Name: "customer_id", Value: customer},
	), true
}

// TrimSubscription drops the nested related objects from a flattened
// subscription.
func TrimSubscription(r harvest.Record) harvest.Record {
	var drop []string
	for _, name := range r.Names() {
		for _, prefix := range subscriptionNesting {
			if name == prefix || strings.HasPrefix(name, prefix+".") {
				drop = append(drop, name)
				break
			}
		}
	}
	return r.Without(drop...)
}
