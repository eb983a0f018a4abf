package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/harvest/internal/apisource"
	"github.com/jmylchreest/harvest/internal/config"
	"github.com/jmylchreest/harvest/internal/database"
	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

var cratejoyCmd = &cobra.Command{
	Use:   "cratejoy [endpoint...]",
	Short: "Replace the Cratejoy tables from the API",
	Long: `Page through Cratejoy API endpoints and replace one table per endpoint
(CRATEJOY_<ENDPOINT>). Nested objects are flattened into dotted columns.
Subscriptions also fill CRATEJOY_CUSTOMER_SUBSCRIPTIONS with the
subscription-to-customer links.

With no arguments every endpoint is harvested:
  ` + strings.Join(apisource.CratejoyEndpoints, ", ") + `

Credentials: CRATEJOY_USER (client id) and CRATEJOY_SECRET_KEY.
CRATEJOY_HOST overrides the API root.

Examples:
  harvest cratejoy --db mysql
  harvest cratejoy subscriptions customers`,
	RunE: runCratejoy,
}

func init() {
	rootCmd.AddCommand(cratejoyCmd)
	addDatabaseFlags(cratejoyCmd)
	addHarvestFlags(cratejoyCmd)
}

func runCratejoy(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	endpoints := args
	if len(endpoints) == 0 {
		endpoints = apisource.CratejoyEndpoints
	}
	for _, e := range endpoints {
		if err := validChoice(e, apisource.CratejoyEndpoints); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}

	creds := config.Load(viper.GetViper(), "cratejoy")
	if err := creds.Require("User", "Password"); err != nil {
		return err
	}
	client := apisource.NewClient(apisource.ClientConfig{User: creds.User, Password: creds.Secret()})

	db, err := openDatabase(ctx, cmd, "cratejoy")
	if err != nil {
		return err
	}
	defer closeDB(db)

	var errs []error
	for _, endpoint := range endpoints {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := harvestCratejoy(ctx, cmd, client, db, creds.Host, endpoint); err != nil {
			logger.Error("endpoint failed", "source", "cratejoy", "endpoint", endpoint, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", endpoint, err))
		}
	}
	return errors.Join(errs...)
}

func harvestCratejoy(ctx context.Context, cmd *cobra.Command, client *apisource.Client, db *database.DB, base, endpoint string) error {
	cur, pages, err := apisource.NewCratejoy(client, base, endpoint)
	if err != nil {
		return err
	}

	var dest harvest.Destination = tableDestination(cmd, db, apisource.CratejoyTable(endpoint))
	if endpoint == "subscriptions" {
		dest = apisource.SplitDestination{
			Primary: dest,
			Derived: tableDestination(cmd, db, apisource.CustomerSubscriptionsTable),
			Trim:    apisource.TrimSubscription,
			Derive:  apisource.CustomerSubscription,
		}
	}

	h, err := harvest.New("cratejoy."+endpoint, cur, pages, dest, harvestOptions(cmd)...)
	if err != nil {
		return err
	}
	_, err = runHarvest(ctx, h, db)
	return err
}
