package apisource

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jmylchreest/harvest/pkg/cursor"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// ShopifyAPIVersion is the Admin REST API version requested.
const ShopifyAPIVersion = "2023-10"

// ShopifyResource is a paged Admin API collection.
type ShopifyResource struct {
	Name   string            // Resource path, e.g. "custom_collections"
	Params map[string]string // Extra query parameters
}

// Key is the JSON member holding the page's records.
func (r ShopifyResource) Key() string {
	return r.Name
}

// Table returns the table the resource is loaded into.
func (r ShopifyResource) Table() string {
	return "SHOPIFY_" + strings.ToUpper(r.Name)
}

// ShopifyResources are the collections harvested by default. Checkouts
// lists abandoned checkouts.
var ShopifyResources = []ShopifyResource{
	{Name: "orders", Params: map[string]string{"status": "any"}},
	{Name: "products"},
	{Name: "custom_collections"},
	{Name: "price_rules"},
	{Name: "checkouts"},
}

// ShopifyShopTable is the table of the single-object shop resource.
const ShopifyShopTable = "SHOPIFY_SHOP"

// ShopifyBase returns the Admin API root of store. A store given as a full
// URL (a test server, a custom domain) is used as is.
func ShopifyBase(store string) string {
	if strings.Contains(store, "://") {
		return strings.TrimRight(store, "/") + "/admin/api/" + ShopifyAPIVersion + "/"
	}
	return fmt.Sprintf("https://%s.myshopify.com/admin/api/%s/", store, ShopifyAPIVersion)
}

// LookupShopifyResource finds a default resource by name.
func LookupShopifyResource(name string) (ShopifyResource, bool) {
	for _, r := range ShopifyResources {
		if r.Name == name {
			return r, true
		}
	}
	return ShopifyResource{}, false
}

// ShopifyPages lists one since_id page of a resource and reports the ids
// it saw to the cursor.
type ShopifyPages struct {
	client   *Client
	cursor   *cursor.SinceIDCursor
	resource ShopifyResource
}

// NewShopify creates the cursor and fetcher for resource under base.
func NewShopify(client *Client, base string, resource ShopifyResource, limit int) (*cursor.SinceIDCursor, *ShopifyPages, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + resource.Name + ".json")
	if err != nil {
		return nil, nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	for k, v := range resource.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	c, err := cursor.NewSinceIDCursor(u.String(), limit)
	if err != nil {
		return nil, nil, err
	}
	return c, &ShopifyPages{client: client, cursor: c, resource: resource}, nil
}

// FetchPage implements harvest.RecordFetcher.
func (p *ShopifyPages) FetchPage(ctx context.Context, token harvest.PageToken) ([]harvest.RecordHandle, error) {
	body, err := p.client.Get(ctx, token.URL)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: response is not JSON", token.URL)
	}

	var ids []int64
	for _, id := range gjson.GetBytes(body, p.resource.Key()+".#.id").Array() {
		ids = append(ids, id.Int())
	}
	p.cursor.Observe(ids)

	return Handles(Records(body, p.resource.Key()), token.URL), nil
}

// ShopPage fetches the single shop object.
type ShopPage struct {
	client *Client
}

// NewShop creates the single-page cursor and fetcher for the shop resource.
func NewShop(client *Client, base string) (*cursor.Single, *ShopPage) {
	return cursor.NewSingle(strings.TrimRight(base, "/") + "/shop.json"), &ShopPage{client: client}
}

// FetchPage implements harvest.RecordFetcher.
func (p *ShopPage) FetchPage(ctx context.Context, token harvest.PageToken) ([]harvest.RecordHandle, error) {
	body, err := p.client.Get(ctx, token.URL)
	if err != nil {
		return nil, err
	}
	shop := gjson.GetBytes(body, "shop")
	if !shop.IsObject() {
		return nil, fmt.Errorf("%s: no shop object in response", token.URL)
	}
	return Handles([]harvest.Record{Flatten(shop)}, token.URL), nil
}
