package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weekfold/weekfold/internal/config"
)

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Run the weekly rollover check",
	Long: `Check the weekly rollover window and, if it is open and this week has not
been handled yet, move incomplete this-week tasks into next week.

The daemon and every sync cycle already run this check; the command exists
for scripted setups and for retrying after a failure without waiting for
the next cycle. Moved tasks are marked dirty and upload on the next sync.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger := newLogger(cfg, "[wf] ")

		app, err := buildApp(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer app.Close()

		moved, err := app.roll.PerformIfNeeded(cmd.Context(), cfg.UserID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: rollover failed: %v\n", err)
			os.Exit(1)
		}
		if moved {
			fmt.Println("Rollover performed; run 'wf sync' to upload the moves")
		} else {
			fmt.Println("Nothing to do (outside the weekend window, or already performed)")
		}
	},
}
