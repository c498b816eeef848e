// Command opskit is the operational toolkit CLI: account cross-reference
// management, incident/tracker assignee validation and knowledge-base
// indexing. Every subcommand is a one-shot invocation; exit code 0 means the
// run completed, even when individual records failed and were recorded in the
// report.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atuld8/opskit/internal/config"
	"github.com/atuld8/opskit/internal/logger"
	"github.com/atuld8/opskit/internal/store"
	"github.com/atuld8/opskit/internal/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:           "opskit",
	Short:         "Operational toolkit for account cross-referencing and assignee validation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(newAccountCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newKBCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "opskit:", err)
		os.Exit(1)
	}
}

// loadConfig parses the environment once per invocation.
func loadConfig() (*config.Config, error) {
	return config.New()
}

// openStore opens the identity store from cfg.
func openStore(cfg *config.Config) (store.Store, error) {
	return sqlite.New(cfg.DBPath)
}

var newLogger = logger.New
