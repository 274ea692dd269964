// Command wf is the weekfold sync client.
//
// It runs the sync engine against the weekfold backend: one-shot cycles,
// a background daemon with periodic and realtime triggers, and maintenance
// commands for the weekly rollover and sync status.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "wf",
	Short: "Weekfold sync client",
	Long: `wf keeps a device's local task store in sync with the weekfold backend.

The local store is an embedded SQLite database. Sync cycles push dirty local
records, pull server deltas since the last checkpoint, resolve conflicts
last-write-wins on server timestamps, and run the weekly rollover and routine
generation between phases.

Configuration is read from ~/.weekfold/config.yaml (override with --config)
or WEEKFOLD_* environment variables.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rolloverCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
