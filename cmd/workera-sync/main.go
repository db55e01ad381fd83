// Command workera-sync runs a board sync session against a workera backend.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/workera/internal/model"
)

var (
	configPath string
	verbose    bool
	jsonLogs   bool

	cfg    *model.AppConfig
	logger = log.New()
)

var rootCmd = &cobra.Command{
	Use:   "workera-sync",
	Short: "Client-side sync engine for workera boards",
	Long: `workera-sync keeps a local copy of your workspaces and boards in sync
with a workera backend. Edits apply locally first and are written to the
backend in the background; changes from collaborators arrive over the
realtime feed.

Examples:
  workera-sync run                    # headless session, logs changes
  workera-sync watch                  # terminal board watcher
  workera-sync serve --db dev.db      # local development backend
  workera-sync token set              # store an API token in the keyring`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}
		if jsonLogs {
			logger.SetFormatter(&log.JSONFormatter{})
		}
		loaded, err := model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON")
}

func main() {
	logger.SetOutput(os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
