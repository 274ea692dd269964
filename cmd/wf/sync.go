package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/weekfold/weekfold/internal/config"
	"github.com/weekfold/weekfold/internal/model"
	"github.com/weekfold/weekfold/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one full sync cycle",
	Long: `Run one full sync cycle: push dirty records, pull server deltas since the
last checkpoint, resolve conflicts, and run rollover and routine generation.

A cold local store pulls the complete dataset. --full resets the saved
checkpoints first, forcing a complete re-pull on an existing store.

--bucket and --due-by narrow the initial task pull to what a client view
needs; other collections ignore them.`,
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

		ctx := cmd.Context()

		full, _ := cmd.Flags().GetBool("full")
		if full {
			if err := app.store.Checkpoints.Reset(ctx, cfg.UserID); err != nil {
				fmt.Fprintf(os.Stderr, "Error resetting checkpoints: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("Checkpoints reset; pulling complete dataset")
		}

		view, err := viewFromFlags(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		start := time.Now()
		if err := app.orch.Sync(ctx, cfg.UserID, view); err != nil {
			fmt.Fprintf(os.Stderr, "Error: sync failed: %v\n", err)
			os.Exit(1)
		}

		stats := app.orch.LastStats()
		fmt.Printf("Sync complete in %v\n", time.Since(start).Round(time.Millisecond))
		for _, name := range []string{"tasks", "labels", "task_labels", "recurrences", "templates", "series", "working_log"} {
			ps, ok := stats.Phases[name]
			if !ok {
				continue
			}
			fmt.Printf("  %-12s pushed %d, pulled %d (applied %d, skipped %d)\n",
				name, ps.Pushed, ps.Pulled, ps.Inserted+ps.Applied, ps.SkippedOlder+ps.SkippedNoop)
		}
		if stats.RolledOver {
			fmt.Println("  weekly rollover performed")
		}
	},
}

func viewFromFlags(cmd *cobra.Command) (sync.ViewContext, error) {
	var view sync.ViewContext

	if s, _ := cmd.Flags().GetString("bucket"); s != "" {
		b := model.Bucket(s)
		switch b {
		case model.BucketThisWeek, model.BucketWeekend, model.BucketNextWeek,
			model.BucketNextMonth, model.BucketRoutines:
		default:
			return view, fmt.Errorf("unknown bucket %q", s)
		}
		view.Bucket = &b
	}

	if s, _ := cmd.Flags().GetString("due-by"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return view, fmt.Errorf("parse --due-by: %w", err)
		}
		view.DueBy = &t
	}

	return view, nil
}

func init() {
	syncCmd.Flags().Bool("full", false, "reset checkpoints and pull everything")
	syncCmd.Flags().String("bucket", "", "narrow the task pull to one bucket")
	syncCmd.Flags().String("due-by", "", "narrow the task pull to due dates up to YYYY-MM-DD")
}
