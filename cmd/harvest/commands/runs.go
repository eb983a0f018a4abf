package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/harvest/internal/state"
)

var runsCmd = &cobra.Command{
	Use:   "runs [source]",
	Short: "List recent harvest runs",
	Long: `List the runs recorded in the database ledger, newest first, and any
checkpoints waiting to be resumed.

Examples:
  harvest runs
  harvest runs cratejoy.subscriptions --db mysql --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().Int("limit", 20, "max runs listed")
	addDatabaseFlags(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	var source string
	if len(args) > 0 {
		source = args[0]
	}
	limit, _ := cmd.Flags().GetInt("limit")

	db, err := openDatabase(ctx, cmd, "harvest")
	if err != nil {
		return err
	}
	defer closeDB(db)

	runs, err := db.Runs(ctx, source, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "no runs recorded")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSOURCE\tSTATE\tRECORDS\tPAGES\tSKIPPED\tSTARTED\tDURATION")
		for _, r := range runs {
			status := r.State
			if r.Error != "" {
				status += " (" + truncateText(r.Error, 40) + ")"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				r.ID, r.Source, status,
				humanize.Comma(int64(r.Records)), r.Pages, r.Failures,
				humanize.Time(r.StartedAt), r.Duration().Round(time.Second))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	keys, err := state.NewFileStore(state.DefaultPath()).Keys()
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		fmt.Fprintf(out, "\nresumable: %v (run with --resume)\n", keys)
	}
	return nil
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
