package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/harvest/internal/config"
	"github.com/jmylchreest/harvest/internal/database"
	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// addHarvestFlags registers the traversal flags every source shares.
func addHarvestFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("max-pages", 0, "max pages to fetch (0=unlimited)")
	flags.Duration("delay", 0, "delay between pages")
	flags.Int("retries", 3, "retries for a failed page before it is treated as the last")
	flags.Duration("backoff", time.Second, "initial retry backoff")
}

// harvestOptions maps the traversal flags to harvester options.
func harvestOptions(cmd *cobra.Command) []harvest.Option {
	flags := cmd.Flags()
	maxPages, _ := flags.GetInt("max-pages")
	delay, _ := flags.GetDuration("delay")
	retries, _ := flags.GetInt("retries")
	backoff, _ := flags.GetDuration("backoff")

	return []harvest.Option{
		harvest.WithMaxPages(maxPages),
		harvest.WithDelay(delay),
		harvest.WithPageRetries(retries),
		harvest.WithReacquireRetries(retries),
		harvest.WithBackoff(backoff, 30*time.Second),
	}
}

// addDatabaseFlags registers the relational target flags.
func addDatabaseFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("db", "", `database: a sqlite path, "sqlite3:<path>", "mysql" (MYSQL_* settings) or "mysql://<dsn>" (default harvest.db, or $HARVEST_DB)`)
	flags.Bool("allow-empty", false, "replace tables even when nothing was harvested")
}

// openDatabase opens the --db target. name is the MySQL database used when
// MYSQL_DATABASE is unset.
func openDatabase(ctx context.Context, cmd *cobra.Command, name string) (*database.DB, error) {
	target, _ := cmd.Flags().GetString("db")
	if target == "" {
		target = viper.GetString("harvest_db")
	}
	cfg, err := config.DatabaseFor(viper.GetViper(), target, name)
	if err != nil {
		return nil, err
	}
	logger.Debug("database target", "driver", cfg.Driver)
	return database.Open(ctx, cfg.Driver, cfg.DSN)
}

// tableDestination replaces table in db, keeping the old contents when
// nothing was harvested unless --allow-empty is set.
func tableDestination(cmd *cobra.Command, db *database.DB, table string) database.TableDestination {
	allowEmpty, _ := cmd.Flags().GetBool("allow-empty")
	dest := database.TableDestination{DB: db, KeepOnEmpty: !allowEmpty}
	dest.Table.Name = table
	return dest
}

// runHarvest runs h, writes the run to the ledger when there is one and
// prints a summary.
func runHarvest(ctx context.Context, h *harvest.Harvester, ledger *database.DB) (*harvest.Run, error) {
	run, err := h.Run(ctx)
	if run == nil {
		return nil, err
	}
	if ledger != nil {
		if _, lerr := ledger.RecordRun(context.WithoutCancel(ctx), run); lerr != nil {
			logger.Warn("failed to record run", "source", run.Source, "error", lerr)
		}
	}
	printSummary(run)
	return run, err
}

func printSummary(run *harvest.Run) {
	logInfo("%s: %s records from %s pages in %s",
		run.Source,
		humanize.Comma(int64(run.Records)),
		humanize.Comma(int64(run.Pages)),
		run.Duration().Round(time.Millisecond))
	if run.Failures > 0 || run.Duplicates > 0 || len(run.Warnings) > 0 {
		logInfo("  %s skipped, %s duplicates, %d warnings",
			humanize.Comma(int64(run.Failures)),
			humanize.Comma(int64(run.Duplicates)),
			len(run.Warnings))
	}
	if run.Err != nil {
		logInfo("  stopped: %v", run.Err)
	}
}

// printOutputSize reports the size of a written file.
func printOutputSize(path string) {
	if path == "" || path == "-" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	logInfo("  wrote %s (%s)", path, humanize.Bytes(uint64(info.Size()))) //#nosec G115 -- file sizes are non-negative
}

// closeDB closes db, logging failures.
func closeDB(db *database.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		logger.Warn("failed to close database", "error", err)
	}
}

// validChoice checks value against the accepted names.
func validChoice(value string, choices []string) error {
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return fmt.Errorf("unknown %q (choose from %v)", value, choices)
}
