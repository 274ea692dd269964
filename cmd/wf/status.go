package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weekfold/weekfold/internal/config"
	"github.com/weekfold/weekfold/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and checkpoint status",
	Long: `Show what the local store holds and how fresh each collection's pull
checkpoint is. Useful for deciding whether a full re-pull (wf sync --full)
is warranted.`,
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
		printStatus(ctx, app, cfg.UserID)
	},
}

func printStatus(ctx context.Context, app *app, userID string) {
	fmt.Printf("Store: %s\n", app.cfg.DatabasePath)

	counts := []struct {
		name  string
		count func(context.Context, string) (int64, error)
	}{
		{"tasks", app.store.Tasks.Count},
		{"labels", app.store.Labels.Count},
		{"task_labels", app.store.TaskLabels.Count},
		{"templates", app.store.Templates.Count},
		{"series", app.store.Series.Count},
		{"recurrences", app.store.Recurrences.Count},
		{"working_log", app.store.WorkingLog.Count},
	}
	for _, c := range counts {
		n, err := c.count(ctx, userID)
		if err != nil {
			fmt.Printf("  %-12s error: %v\n", c.name, err)
			continue
		}
		fmt.Printf("  %-12s %d\n", c.name, n)
	}

	snap, err := app.store.Checkpoints.LoadSnapshot(ctx, userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading checkpoints: %v\n", err)
		return
	}

	fmt.Println("Checkpoints:")
	if len(snap) == 0 {
		fmt.Println("  none (next sync pulls everything)")
		return
	}
	for _, col := range []model.Collection{
		model.CollectionTasks, model.CollectionLabels, model.CollectionTaskLabels,
		model.CollectionTemplates, model.CollectionSeries, model.CollectionRecurrences,
		model.CollectionWorkingLog,
	} {
		ts, ok := snap[col]
		if !ok {
			continue
		}
		fmt.Printf("  %-12s %s\n", col, ts.Local().Format("2006-01-02 15:04:05"))
	}
}
