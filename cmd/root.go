// Package cmd implements the libris command line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/libris-ai/libris/internal/config"
	"github.com/libris-ai/libris/internal/log"
)

var (
	flagVerbose  bool
	flagJSONLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "libris",
	Short: "libris - chat with your own library",
	Long: `libris ingests books, articles, and notes into a vector store and
answers questions grounded in that material, with citations.

Typical workflow:

  libris ingest --type book --name "The Garden Book" garden.txt
  libris ask "how do I prepare a new vegetable bed?"
  libris serve`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "log in JSON format")
}

// newLogger builds the process logger from the persistent flags.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: flagJSONLogs})
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
