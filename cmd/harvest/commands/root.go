// Package commands implements the CLI commands for harvest.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/harvest/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Paginated record harvester",
	Long: `Harvest walks paginated sources page by page and writes every record
to a file or a database table.

Sources:
  bookdepot   BookDepot catalog listing (browser or static HTML)
  cratejoy    Cratejoy API endpoints (next-reference pages)
  shopify     Shopify Admin API resources (since_id pages)
  sheet       A published purchase spreadsheet (single page)

Credentials are read from the environment or .harvest.yaml, as
{SOURCE}_USER, {SOURCE}_PASSWORD or {SOURCE}_SECRET_KEY, {SOURCE}_HOST,
{SOURCE}_DATABASE and {SOURCE}_STORE.

Examples:
  # Scrape the catalog to CSV, one record at a time
  harvest bookdepot --out bookdepot.csv

  # Pick up an interrupted scrape where it stopped
  harvest bookdepot --out bookdepot.csv --resume --dedupe-key url

  # Load the scraped CSV into MySQL
  harvest load bookdepot --in bookdepot.csv --db mysql

  # Replace the Cratejoy tables
  harvest cratejoy --db mysql`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		return logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			JSON:  viper.GetBool("log_json"),
			Level: viper.GetString("log_level"),
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.harvest.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("log_json", rootCmd.PersistentFlags().Lookup("log-json"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".harvest")
		viper.SetConfigType("yaml")
	}

	// Source keys are read unprefixed: CRATEJOY_USER, MYSQL_HOST, ...
	viper.AutomaticEnv()

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logError("%v", err)
	}
	return err
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
