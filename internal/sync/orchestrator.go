package sync

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

const (
	// maxAttempts bounds retries per phase.
	maxAttempts = 5

	// maxBackoff caps the exponential delay between attempts.
	maxBackoff = 30 * time.Second

	// maxJitter is added to every backoff delay.
	maxJitter = 300 * time.Millisecond
)

// Orchestrator coordinates full sync cycles. One orchestrator serves one
// process; concurrency is bounded by its single-flight gate.
type Orchestrator struct {
	backends Backends
	services Services
	opts     Options
	logger   *log.Logger
	now      func() time.Time
	backoff  func(attempt int) time.Duration

	tasks       *collectionSyncer[model.Task]
	labels      *collectionSyncer[model.Label]
	taskLabels  *collectionSyncer[model.TaskLabel]
	recurrences *collectionSyncer[model.Recurrence]
	templates   *collectionSyncer[model.Template]
	series      *collectionSyncer[model.Series]
	workingLog  *collectionSyncer[model.WorkingLogItem]

	st state
}

// New creates an orchestrator over the given backends and services.
// If logger is nil, a default logger writing to stderr is used.
func New(backends Backends, services Services, opts Options, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	o := &Orchestrator{
		backends: backends,
		services: services,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		backoff:  backoffDelay,
	}

	cps := backends.Checkpoints
	o.tasks = &collectionSyncer[model.Task]{
		name: model.CollectionTasks, local: backends.Tasks, remote: backends.TasksRemote, cps: cps,
		equivalent:  func(a, b model.Task) bool { return a.EquivalentTo(&b) },
		pushEnabled: true, narrowed: true, logger: logger,
	}
	o.labels = &collectionSyncer[model.Label]{
		name: model.CollectionLabels, local: backends.Labels, remote: backends.LabelsRemote, cps: cps,
		equivalent:  func(a, b model.Label) bool { return a.EquivalentTo(&b) },
		pushEnabled: true, logger: logger,
	}
	o.taskLabels = &collectionSyncer[model.TaskLabel]{
		name: model.CollectionTaskLabels, local: backends.TaskLabels, remote: backends.TaskLabelsRemote, cps: cps,
		equivalent:  func(a, b model.TaskLabel) bool { return a.EquivalentTo(&b) },
		pushEnabled: true, logger: logger,
	}
	o.recurrences = &collectionSyncer[model.Recurrence]{
		name: model.CollectionRecurrences, local: backends.Recurrences, remote: backends.RecurrencesRemote, cps: cps,
		logger: logger,
	}
	o.templates = &collectionSyncer[model.Template]{
		name: model.CollectionTemplates, local: backends.Templates, remote: backends.TemplatesRemote, cps: cps,
		logger: logger,
	}
	if services.Templates != nil {
		// A template updated on another device cascades onto the local
		// occurrences as soon as the pull applies it. Propagation failures
		// are logged, not fatal: the next edit or a manual resync reapplies.
		o.templates.onApplied = func(ctx context.Context, old, new model.Template) {
			// Occurrence dates are midnights, so the cutoff must be the
			// start of today or today's open occurrence escapes the cascade.
			now := o.now()
			from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
			if err := services.Templates.Propagate(ctx, new.UserID, &old, &new, from); err != nil {
				logger.Printf("WARNING: templates: propagate %s: %v", new.ID, err)
			}
		}
	}
	o.series = &collectionSyncer[model.Series]{
		name: model.CollectionSeries, local: backends.Series, remote: backends.SeriesRemote, cps: cps,
		logger: logger,
	}
	o.workingLog = &collectionSyncer[model.WorkingLogItem]{
		name: model.CollectionWorkingLog, local: backends.WorkingLog, remote: backends.WorkingLogRemote, cps: cps,
		equivalent:  func(a, b model.WorkingLogItem) bool { return a.EquivalentTo(&b) },
		pushEnabled: true, logger: logger,
	}

	return o
}

// Sync runs one full sync cycle for the user, or coalesces into an already
// running one. Safe to call concurrently: if a cycle is active, the call
// sets a rerun flag and returns nil immediately; when the active cycle
// finishes, exactly one more cycle starts with the most recent view context.
//
// The returned error is the failure of the cycle this call executed, if any;
// it is also retained and exposed via LastError until the next success.
func (o *Orchestrator) Sync(ctx context.Context, userID string, view ViewContext) error {
	if !o.st.tryStart(view) {
		return nil
	}

	var lastErr error
	for {
		err := o.runCycle(ctx, userID, view)
		lastErr = err

		again, nextView := o.st.finish(err, o.now())
		if !again {
			return lastErr
		}
		view = nextView
	}
}

// runCycle executes the full phase sequence once.
func (o *Orchestrator) runCycle(ctx context.Context, userID string, view ViewContext) error {
	started := o.now()
	stats := newCycleStats(started)
	o.logger.Printf("sync cycle starting for user %s", userID)

	snap, err := o.backends.Checkpoints.LoadSnapshot(ctx, userID)
	if err != nil {
		return fmt.Errorf("load checkpoints: %w", err)
	}
	if snap == nil {
		snap = model.CheckpointSnapshot{}
	}

	// Rollover before push, so a same-cycle bucket move rides along with
	// the task push below.
	if o.opts.RolloverEnabled && o.services.Rollover != nil {
		if err := o.runPhase(ctx, "rollover-pre", func(ctx context.Context) error {
			moved, err := o.services.Rollover.PerformIfNeeded(ctx, userID)
			if moved {
				stats.RolledOver = true
			}
			return err
		}); err != nil {
			return o.fail(stats, err)
		}
	}

	if err := o.runPhase(ctx, "tasks", func(ctx context.Context) error {
		return o.tasks.run(ctx, userID, view, snap, stats.phase("tasks"))
	}); err != nil {
		return o.fail(stats, err)
	}

	if err := o.runPhase(ctx, "labels", func(ctx context.Context) error {
		if err := o.labels.run(ctx, userID, view, snap, stats.phase("labels")); err != nil {
			return err
		}
		return o.taskLabels.run(ctx, userID, view, snap, stats.phase("task_labels"))
	}); err != nil {
		return o.fail(stats, err)
	}

	// Recurrence definitions refresh pull-only: recurrences plus the
	// templates and series that drive generation further down.
	if err := o.runPhase(ctx, "recurrences", func(ctx context.Context) error {
		if err := o.recurrences.run(ctx, userID, view, snap, stats.phase("recurrences")); err != nil {
			return err
		}
		if err := o.templates.run(ctx, userID, view, snap, stats.phase("templates")); err != nil {
			return err
		}
		return o.series.run(ctx, userID, view, snap, stats.phase("series"))
	}); err != nil {
		return o.fail(stats, err)
	}

	if o.services.CatchUp != nil {
		if err := o.runPhase(ctx, "recurrence-catchup", func(ctx context.Context) error {
			return o.services.CatchUp.Run(ctx, userID)
		}); err != nil {
			return o.fail(stats, err)
		}
	}

	if err := o.runPhase(ctx, "working-log", func(ctx context.Context) error {
		return o.workingLog.run(ctx, userID, view, snap, stats.phase("working_log"))
	}); err != nil {
		return o.fail(stats, err)
	}

	if o.opts.RoutinesEnabled && o.services.Series != nil {
		if err := o.runPhase(ctx, "series-generation", func(ctx context.Context) error {
			return o.services.Series.GenerateIfNeeded(ctx, userID)
		}); err != nil {
			return o.fail(stats, err)
		}
	}

	if o.opts.RolloverEnabled && o.services.Rollover != nil {
		if err := o.runPhase(ctx, "rollover-post", func(ctx context.Context) error {
			moved, err := o.services.Rollover.PerformIfNeeded(ctx, userID)
			if moved {
				stats.RolledOver = true
			}
			return err
		}); err != nil {
			return o.fail(stats, err)
		}
	}

	stats.Duration = o.now().Sub(started)
	o.st.recordStats(stats)
	o.logger.Printf("sync cycle complete in %v", stats.Duration)
	return nil
}

func (o *Orchestrator) fail(stats CycleStats, err error) error {
	stats.Duration = o.now().Sub(stats.StartedAt)
	o.st.recordStats(stats)
	return err
}

// runPhase executes fn with the engine's retry policy: up to maxAttempts
// attempts, exponential backoff capped at maxBackoff plus random jitter.
// Constraint-class errors abort immediately.
func (o *Orchestrator) runPhase(ctx context.Context, name string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := o.backoff(attempt)
			o.logger.Printf("phase %s: attempt %d/%d in %v after: %v", name, attempt+1, maxAttempts, delay, err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("phase %s: %w", name, ctx.Err())
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			o.logger.Printf("phase %s: non-retryable: %v", name, err)
			return fmt.Errorf("phase %s: %w", name, err)
		}
	}
	return fmt.Errorf("phase %s: %d attempts exhausted: %w", name, maxAttempts, err)
}

// backoffDelay computes min(2^attempt, 30)s plus jitter in [0, 300ms).
func backoffDelay(attempt int) time.Duration {
	secs := math.Min(math.Pow(2, float64(attempt)), maxBackoff.Seconds())
	jitter := time.Duration(rand.Float64() * float64(maxJitter))
	return time.Duration(secs*float64(time.Second)) + jitter
}

// LastError returns the most recent cycle failure, or nil after a success.
func (o *Orchestrator) LastError() error { return o.st.lastError() }

// LastSyncAt returns the completion time of the last successful cycle.
func (o *Orchestrator) LastSyncAt() time.Time { return o.st.lastSyncAt() }

// LastStats returns the statistics of the most recently finished cycle.
func (o *Orchestrator) LastStats() CycleStats { return o.st.lastStats() }

// Syncing reports whether a cycle is currently running.
func (o *Orchestrator) Syncing() bool { return o.st.isSyncing() }
