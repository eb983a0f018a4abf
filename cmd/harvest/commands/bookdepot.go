package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/harvest/internal/bookdepot"
	"github.com/jmylchreest/harvest/internal/crawler"
	"github.com/jmylchreest/harvest/internal/database"
	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/output"
	"github.com/jmylchreest/harvest/internal/scraper"
	"github.com/jmylchreest/harvest/internal/state"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

var bookdepotCmd = &cobra.Command{
	Use:   "bookdepot",
	Short: "Scrape the BookDepot catalog listing",
	Long: `Walk the BookDepot fiction/romance listing page by page, open every
book's detail page and append one record per book to the output file.

Records are written as soon as they are extracted, so an interrupted run
keeps everything scraped so far. --resume continues from the last
completed page; add --dedupe-key url to skip books already in the file.

Fetch modes:
  dom     one headless Chrome tab clicks through the listing (default)
  static  plain HTTP requests; --render renders each page in a fresh tab

Examples:
  harvest bookdepot --out bookdepot.csv
  harvest bookdepot --fetch-mode static --workers 4 --max-pages 2
  harvest bookdepot --resume --dedupe-key url --checkpoint-db harvest.db`,
	Args: cobra.NoArgs,
	RunE: runBookdepot,
}

func init() {
	rootCmd.AddCommand(bookdepotCmd)

	flags := bookdepotCmd.Flags()

	// Source
	flags.String("start", bookdepot.ListingURL, "listing URL to start from")
	flags.String("fetch-mode", "dom", "fetch mode: dom, static")
	flags.Bool("render", false, "static mode: render every page in a headless browser")
	flags.Duration("wait", crawler.DefaultWait, "max wait for a page to render")
	flags.Bool("headful", false, "show the browser window")

	// Output
	flags.StringP("out", "o", "bookdepot.csv", "output file (- for stdout)")
	flags.String("format", "", "output format: csv, jsonl, yaml, json (default from file extension)")

	// Records
	flags.IntP("workers", "c", 1, "detail pages fetched concurrently (static mode only)")
	flags.String("dedupe-key", "", "field used to drop repeated books, e.g. url")

	// Resume
	flags.Bool("resume", false, "continue from the last completed page and keep the existing output")
	flags.String("checkpoint-db", "", "keep checkpoints in this database instead of the state file")

	addHarvestFlags(bookdepotCmd)

	_ = viper.BindPFlag("bookdepot_start", flags.Lookup("start"))
}

func runBookdepot(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flags := cmd.Flags()
	mode, _ := flags.GetString("fetch-mode")
	if err := validChoice(mode, []string{"dom", "static"}); err != nil {
		return fmt.Errorf("fetch mode: %w", err)
	}
	render, _ := flags.GetBool("render")
	wait, _ := flags.GetDuration("wait")
	headful, _ := flags.GetBool("headful")
	outPath, _ := flags.GetString("out")
	formatStr, _ := flags.GetString("format")
	workers, _ := flags.GetInt("workers")
	dedupeKey, _ := flags.GetString("dedupe-key")
	resume, _ := flags.GetBool("resume")
	checkpointDB, _ := flags.GetString("checkpoint-db")

	format := output.FormatFromPath(outPath)
	if formatStr != "" {
		f, err := output.ParseFormat(formatStr)
		if err != nil {
			return err
		}
		format = f
	}

	crawl := bookdepot.Crawl(viper.GetString("bookdepot_start"))
	crawl.Wait = wait
	fetchCfg := scraper.DefaultFetcherConfig()
	fetchCfg.Timeout = wait
	fetchCfg.Headless = !headful

	opts := harvestOptions(cmd)
	opts = append(opts, harvest.WithWorkers(workers))

	var ledger *database.DB
	if resume {
		var store harvest.CheckpointStore
		if checkpointDB != "" {
			db, err := database.Open(ctx, "sqlite3", checkpointDB)
			if err != nil {
				return err
			}
			ledger = db
			store = db.Checkpoints()
		} else {
			store = state.NewFileStore(state.DefaultPath())
		}
		opts = append(opts, harvest.WithCheckpoint(store, bookdepot.Source))
	}
	defer closeDB(ledger)

	if dedupeKey != "" {
		var seed []string
		if resume {
			keys, err := output.ExistingKeys(outPath, format, dedupeKey)
			if err != nil {
				return fmt.Errorf("failed to read existing output: %w", err)
			}
			seed = keys
			logger.Debug("dedupe seeded from output", "path", outPath, "keys", len(keys))
		}
		opts = append(opts, harvest.WithDedupe(dedupeKey, seed...))
	}

	dest := output.FileDestination{
		Path:    outPath,
		Format:  format,
		Columns: bookdepot.Fields,
		Resume:  resume,
	}

	var (
		h   *harvest.Harvester
		err error
	)
	switch mode {
	case "dom":
		var done func()
		h, done, err = domHarvester(ctx, crawl, fetchCfg, dest, opts)
		if done != nil {
			defer done()
		}
	default:
		var done func()
		h, done, err = staticHarvester(crawl, fetchCfg, render, dest, opts)
		if done != nil {
			defer done()
		}
	}
	if err != nil {
		return err
	}

	logger.Info("scraping bookdepot", "mode", mode, "start", crawl.StartURL, "out", outPath, "format", format)
	start := time.Now()
	_, err = runHarvest(ctx, h, ledger)
	printOutputSize(outPath)
	logger.Debug("bookdepot finished", "elapsed", time.Since(start))
	return err
}

// domHarvester drives one browser tab through the listing and its detail
// pages.
func domHarvester(ctx context.Context, crawl crawler.Config, cfg scraper.FetcherConfig, dest harvest.Destination, opts []harvest.Option) (*harvest.Harvester, func(), error) {
	browser, err := scraper.NewBrowser(cfg)
	if err != nil {
		return nil, nil, err
	}
	session, err := browser.NewSession(ctx)
	if err != nil {
		_ = browser.Close()
		return nil, nil, err
	}
	done := func() {
		_ = session.Close()
		_ = browser.Close()
	}

	cur, err := crawler.NewDOMCursor(session, crawl)
	if err != nil {
		return nil, done, err
	}
	listing, err := crawler.NewDOMListing(session, crawl)
	if err != nil {
		return nil, done, err
	}
	enricher, err := crawler.NewDOMEnricher(session, crawl, bookdepot.Parse)
	if err != nil {
		return nil, done, err
	}

	h, err := harvest.New(bookdepot.Source, cur, listing, dest, append(opts, harvest.WithEnricher(enricher))...)
	return h, done, err
}

// staticHarvester fetches listing and detail pages independently, so
// detail pages can be fetched concurrently.
func staticHarvester(crawl crawler.Config, cfg scraper.FetcherConfig, render bool, dest harvest.Destination, opts []harvest.Option) (*harvest.Harvester, func(), error) {
	mode := scraper.FetchModeStatic
	if render {
		mode = scraper.FetchModeDynamic
	}
	fetcher, err := scraper.NewFetcher(mode, cfg)
	if err != nil {
		return nil, nil, err
	}
	done := func() { _ = fetcher.Close() }

	cur := crawler.NewLinkCursor(crawl.StartURL)
	listing, err := crawler.NewStaticListing(fetcher, cur, crawl)
	if err != nil {
		return nil, done, err
	}
	enricher := crawler.NewPageEnricher(fetcher, crawl, bookdepot.Parse)

	h, err := harvest.New(bookdepot.Source, cur, listing, dest, append(opts, harvest.WithEnricher(enricher))...)
	return h, done, err
}
