package commands

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/harvest/internal/apisource"
	"github.com/jmylchreest/harvest/internal/bookdepot"
	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/cursor"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

var sheetCmd = &cobra.Command{
	Use:   "sheet",
	Short: "Replace the purchases table from a published spreadsheet",
	Long: `Fetch the book purchase worksheet as CSV and replace the BOOKS_PURCHASED
table. Headings are matched case-insensitively; blank counts and prices
load as 0 and "$" and "," are stripped from prices.

The spreadsheet must be shared so that anyone with the link can view it.
Its id is read from --id or SHEET_ID.

Examples:
  harvest sheet --id 1AbC... --db mysql
  harvest sheet --worksheet "books 2024"`,
	Args: cobra.NoArgs,
	RunE: runSheet,
}

func init() {
	rootCmd.AddCommand(sheetCmd)

	flags := sheetCmd.Flags()
	flags.String("id", "", "spreadsheet id")
	flags.String("worksheet", bookdepot.PurchasesWorksheet, "worksheet name")
	flags.String("url", "", "CSV export URL (overrides --id and --worksheet)")
	addDatabaseFlags(sheetCmd)
	addHarvestFlags(sheetCmd)

	_ = viper.BindPFlag("sheet_id", flags.Lookup("id"))
}

// purchaseSheet rejects a worksheet that lacks the purchase headings, so a
// wrong worksheet never replaces the table.
type purchaseSheet struct {
	*apisource.SheetPage
}

func (s purchaseSheet) FetchPage(ctx context.Context, token harvest.PageToken) ([]harvest.RecordHandle, error) {
	handles, err := s.SheetPage.FetchPage(ctx, token)
	if err != nil || len(handles) == 0 {
		return handles, err
	}
	if err := bookdepot.MissingPurchaseHeadings(handles[0].Record.Names()); err != nil {
		return nil, err
	}
	return handles, nil
}

func runSheet(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	url, _ := cmd.Flags().GetString("url")
	if url == "" {
		id := viper.GetString("sheet_id")
		if id == "" {
			return errors.New("spreadsheet id is not set (--id or SHEET_ID)")
		}
		worksheet, _ := cmd.Flags().GetString("worksheet")
		url = apisource.SheetURL(id, worksheet)
	}

	db, err := openDatabase(ctx, cmd, bookdepot.Source)
	if err != nil {
		return err
	}
	defer closeDB(db)

	dest := tableDestination(cmd, db, bookdepot.PurchasesTableName)
	dest.Table = bookdepot.PurchasesTable()

	fetcher := purchaseSheet{apisource.NewSheetPage(apisource.NewClient(apisource.ClientConfig{}))}
	opts := append(harvestOptions(cmd), harvest.WithTransform(bookdepot.NormalizePurchase))
	h, err := harvest.New("sheet", cursor.NewSingle(url), fetcher, dest, opts...)
	if err != nil {
		return err
	}

	logger.Info("loading purchase sheet", "url", url, "table", dest.Table.Name)
	_, err = runHarvest(ctx, h, db)
	return err
}
