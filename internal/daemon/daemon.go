// Package daemon runs the sync engine in the background.
//
// The daemon owns the periodic schedule and the realtime coordinator: a cron
// schedule triggers full sync cycles at the configured interval, an extra
// early-Saturday entry nudges a cycle so the weekly rollover window is never
// missed on a sleeping machine, and change-feed hints trigger cycles in
// between. All triggers funnel into Orchestrator.Sync, whose single-flight
// gate coalesces them.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/weekfold/weekfold/internal/realtime"
	"github.com/weekfold/weekfold/internal/sync"
)

// Config holds daemon configuration.
type Config struct {
	// UserID is the account this daemon syncs.
	UserID string

	// SyncInterval is the periodic full-sync cadence.
	SyncInterval time.Duration

	// Location anchors the cron schedule. Nil means local time.
	Location *time.Location

	// Logger for daemon lifecycle events.
	Logger *log.Logger
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval: 5 * time.Minute,
		Location:     time.Local,
	}
}

// Daemon schedules sync cycles and relays realtime hints.
type Daemon struct {
	orch   *sync.Orchestrator
	coord  *realtime.Coordinator
	sched  *cron.Cron
	config *Config
	logger *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu      gosync.Mutex
	running bool
}

// New creates a daemon over the orchestrator. feed and merger may be nil,
// which disables realtime hints; the periodic schedule still runs.
func New(orch *sync.Orchestrator, feed realtime.ChannelClient, merger realtime.RowMerger, config *Config) (*Daemon, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.UserID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = 5 * time.Minute
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	d := &Daemon{
		orch:   orch,
		config: config,
		logger: logger,
	}

	if feed != nil && merger != nil {
		d.coord = realtime.New(feed, merger, d.TriggerSync, &realtime.Config{Logger: logger})
	}

	return d, nil
}

// Start begins the schedule and, when configured, the realtime feed. It
// returns once everything is running; Stop shuts it down.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("daemon already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	d.sched = cron.New(cron.WithLocation(d.config.Location))

	every := fmt.Sprintf("@every %s", d.config.SyncInterval)
	if _, err := d.sched.AddFunc(every, d.TriggerSync); err != nil {
		d.cancel()
		return fmt.Errorf("schedule periodic sync: %w", err)
	}

	// Saturday 00:05: make sure a cycle runs inside the rollover window even
	// if the periodic interval is long or the machine just woke up.
	if _, err := d.sched.AddFunc("5 0 * * SAT", d.TriggerSync); err != nil {
		d.cancel()
		return fmt.Errorf("schedule rollover nudge: %w", err)
	}

	if d.coord != nil {
		if err := d.coord.Start(d.ctx, d.config.UserID); err != nil {
			d.logger.Printf("WARNING: realtime disabled: %v", err)
			d.coord = nil
		}
	}

	d.sched.Start()
	d.running = true
	d.logger.Printf("daemon started for user %s (interval %s)", d.config.UserID, d.config.SyncInterval)

	// Initial cycle so a fresh daemon converges immediately.
	d.TriggerSync()
	return nil
}

// TriggerSync requests a full sync cycle without blocking the caller.
// Concurrent triggers coalesce inside the orchestrator.
func (d *Daemon) TriggerSync() {
	d.mu.Lock()
	ctx := d.ctx
	d.mu.Unlock()
	if ctx == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.orch.Sync(ctx, d.config.UserID, sync.ViewContext{}); err != nil {
			d.logger.Printf("ERROR: sync cycle: %v", err)
		}
	}()
}

// Run starts the daemon and blocks until ctx is cancelled, then stops it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// Stop shuts the daemon down: the schedule stops, the realtime feed closes,
// and in-flight sync cycles are awaited. Safe to call more than once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	sched := d.sched
	coord := d.coord
	cancel := d.cancel
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sched != nil {
		<-sched.Stop().Done()
	}
	if coord != nil {
		coord.Stop()
	}
	d.wg.Wait()
	d.logger.Printf("daemon stopped")
}
