package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/harvest/internal/apisource"
	"github.com/jmylchreest/harvest/internal/config"
	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/cursor"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// shopResource names the single-object shop resource on the command line.
const shopResource = "shop"

var shopifyCmd = &cobra.Command{
	Use:   "shopify [resource...]",
	Short: "Replace the Shopify tables from the Admin API",
	Long: `Page through Shopify Admin API resources by since_id and replace one
table per resource (SHOPIFY_<RESOURCE>). Nested objects are flattened
into dotted columns.

With no arguments every resource is harvested: orders (any status),
products, custom_collections, price_rules, checkouts (abandoned) and shop.

Credentials: SHOPIFY_USER (API key), SHOPIFY_PASSWORD and SHOPIFY_STORE
(the myshopify.com store name).

Examples:
  harvest shopify --db mysql
  harvest shopify orders --limit 100`,
	RunE: runShopify,
}

func init() {
	rootCmd.AddCommand(shopifyCmd)
	shopifyCmd.Flags().Int("limit", cursor.DefaultLimit, "records per page")
	addDatabaseFlags(shopifyCmd)
	addHarvestFlags(shopifyCmd)
}

func shopifyNames() []string {
	names := make([]string, 0, len(apisource.ShopifyResources)+1)
	for _, r := range apisource.ShopifyResources {
		names = append(names, r.Name)
	}
	return append(names, shopResource)
}

func runShopify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	names := args
	if len(names) == 0 {
		names = shopifyNames()
	}
	for _, n := range names {
		if err := validChoice(n, shopifyNames()); err != nil {
			return fmt.Errorf("resource: %w", err)
		}
	}
	limit, _ := cmd.Flags().GetInt("limit")

	creds := config.Load(viper.GetViper(), "shopify")
	if err := creds.Require("User", "Password", "Store"); err != nil {
		return err
	}
	client := apisource.NewClient(apisource.ClientConfig{User: creds.User, Password: creds.Secret()})
	base := apisource.ShopifyBase(creds.Store)

	db, err := openDatabase(ctx, cmd, "shopify")
	if err != nil {
		return err
	}
	defer closeDB(db)

	var errs []error
	for _, name := range names {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}

		var (
			cur     harvest.PageCursor
			fetcher harvest.RecordFetcher
			table   string
		)
		if name == shopResource {
			cur, fetcher = apisource.NewShop(client, base)
			table = apisource.ShopifyShopTable
		} else {
			resource, _ := apisource.LookupShopifyResource(name)
			c, f, err := apisource.NewShopify(client, base, resource, limit)
			if err != nil {
				return err
			}
			cur, fetcher, table = c, f, resource.Table()
		}

		h, err := harvest.New("shopify."+name, cur, fetcher, tableDestination(cmd, db, table), harvestOptions(cmd)...)
		if err != nil {
			return err
		}
		if _, err := runHarvest(ctx, h, db); err != nil {
			logger.Error("resource failed", "source", "shopify", "resource", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
