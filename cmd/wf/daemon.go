package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/weekfold/weekfold/internal/config"
	"github.com/weekfold/weekfold/internal/daemon"
	"github.com/weekfold/weekfold/internal/realtime/wsfeed"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync daemon in the foreground until interrupted.

The daemon syncs on a periodic schedule and, when a feed URL is configured,
reacts to realtime change notifications: single-row changes merge directly,
bursts coalesce into one debounced full cycle. An extra early-Saturday
trigger makes sure the weekly rollover window is not missed.

Logs go to the configured log file (rotated) or stderr.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, v, err := config.Load(configPath)
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

		dcfg := &daemon.Config{
			UserID:       cfg.UserID,
			SyncInterval: cfg.SyncInterval,
			Location:     cfg.Location(),
			Logger:       logger,
		}

		var d *daemon.Daemon
		if cfg.FeedURL != "" {
			feed := wsfeed.New(cfg.FeedURL, cfg.APIToken, logger)
			d, err = daemon.New(app.orch, feed, app.merger, dcfg)
		} else {
			d, err = daemon.New(app.orch, nil, nil, dcfg)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Config edits need a restart; surface them instead of silently
		// running with stale settings.
		if v.ConfigFileUsed() != "" {
			v.OnConfigChange(func(e fsnotify.Event) {
				logger.Printf("config file changed (%s); restart to apply", e.Name)
			})
			v.WatchConfig()
		}

		if err := d.Start(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Sync daemon running for user %s (interval %s)\n", cfg.UserID, cfg.SyncInterval)
		fmt.Println("Press Ctrl+C to stop...")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
		case <-cmd.Context().Done():
		}

		fmt.Println("\nStopping...")
		d.Stop()
	},
}
