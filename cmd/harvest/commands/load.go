package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/bookdepot"
	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/pkg/cursor"
	"github.com/jmylchreest/harvest/pkg/harvest"
	"github.com/jmylchreest/harvest/pkg/schema"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a harvested file into a database table",
}

var loadBookdepotCmd = &cobra.Command{
	Use:   "bookdepot",
	Short: "Replace the BookDepot table with a scraped CSV",
	Long: `Read the CSV written by "harvest bookdepot", normalize every row and
replace the BOOKDEPOT_FICTION_ROMANCE table with the result.

Sizes are split into LENGTH, WIDTH and HEIGHT, prices become decimals,
"1000+" stock loads as 1000 and an empty ISBN loads as NULL. Rows that
cannot be normalized are skipped and counted.

Examples:
  harvest load bookdepot --in bookdepot.csv
  harvest load bookdepot --in bookdepot.csv --db mysql`,
	Args: cobra.NoArgs,
	RunE: runLoadBookdepot,
}

func init() {
	rootCmd.AddCommand(loadCmd)
	loadCmd.AddCommand(loadBookdepotCmd)

	flags := loadBookdepotCmd.Flags()
	flags.String("in", "bookdepot.csv", "scraped CSV to load")
	flags.String("table", bookdepot.TableName, "destination table")
	flags.String("schema", "", "table definition file (JSON or YAML) replacing the built-in columns")
	addDatabaseFlags(loadBookdepotCmd)
}

func runLoadBookdepot(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	in, _ := cmd.Flags().GetString("in")
	tableName, _ := cmd.Flags().GetString("table")
	schemaPath, _ := cmd.Flags().GetString("schema")
	if _, err := os.Stat(in); err != nil {
		return fmt.Errorf("input file: %w", err)
	}
	path, err := filepath.Abs(in)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cmd, bookdepot.Source)
	if err != nil {
		return err
	}
	defer closeDB(db)

	dest := tableDestination(cmd, db, tableName)
	dest.Table = bookdepot.Table()
	if schemaPath != "" {
		table, err := schema.FromFile(schemaPath)
		if err != nil {
			return err
		}
		dest.Table = table
		logger.Debug("table schema loaded", "path", schemaPath, "columns", len(table.Columns))
	}
	dest.Table.Name = tableName

	h, err := harvest.New("load."+bookdepot.Source, cursor.NewSingle(path), output.CSVSource{}, dest,
		harvest.WithTransform(bookdepot.Normalize))
	if err != nil {
		return err
	}

	logger.Info("loading bookdepot", "in", path, "table", tableName)
	_, err = runHarvest(ctx, h, db)
	return err
}
