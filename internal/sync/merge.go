package sync

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

// RowMerger applies a single remote row to the local store using the same
// last-write-wins rule as a pull, bypassing a full sync cycle. The realtime
// coordinator uses it for targeted change hints.
type RowMerger struct {
	backends Backends
	logger   *log.Logger
	now      func() time.Time
}

// NewRowMerger creates a merger over the same backends as the orchestrator.
// If logger is nil, a default logger writing to stderr is used.
func NewRowMerger(backends Backends, logger *log.Logger) *RowMerger {
	if logger == nil {
		logger = log.New(os.Stderr, "[merge] ", log.LstdFlags)
	}
	return &RowMerger{backends: backends, logger: logger, now: time.Now}
}

// MergeRow fetches one row from the remote store and merges it locally.
// A row that is gone upstream (hard-deleted) tombstones the local copy.
func (m *RowMerger) MergeRow(ctx context.Context, col model.Collection, id string) error {
	switch col {
	case model.CollectionTasks:
		return mergeRow(ctx, m, m.backends.Tasks, m.backends.TasksRemote, id,
			func(a, b model.Task) bool { return a.EquivalentTo(&b) })
	case model.CollectionLabels:
		return mergeRow(ctx, m, m.backends.Labels, m.backends.LabelsRemote, id,
			func(a, b model.Label) bool { return a.EquivalentTo(&b) })
	case model.CollectionTaskLabels:
		return mergeRow(ctx, m, m.backends.TaskLabels, m.backends.TaskLabelsRemote, id,
			func(a, b model.TaskLabel) bool { return a.EquivalentTo(&b) })
	case model.CollectionTemplates:
		return mergeRow[model.Template](ctx, m, m.backends.Templates, m.backends.TemplatesRemote, id, nil)
	case model.CollectionSeries:
		return mergeRow[model.Series](ctx, m, m.backends.Series, m.backends.SeriesRemote, id, nil)
	case model.CollectionRecurrences:
		return mergeRow[model.Recurrence](ctx, m, m.backends.Recurrences, m.backends.RecurrencesRemote, id, nil)
	case model.CollectionWorkingLog:
		return mergeRow(ctx, m, m.backends.WorkingLog, m.backends.WorkingLogRemote, id,
			func(a, b model.WorkingLogItem) bool { return a.EquivalentTo(&b) })
	}
	return fmt.Errorf("unknown collection %q", col)
}

func mergeRow[T model.Record](ctx context.Context, m *RowMerger, local LocalStore[T], remote RemoteStore[T], id string, equiv func(a, b T) bool) error {
	rec, found, err := remote.Fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", id, err)
	}

	if !found {
		// Hard-deleted upstream; the local copy follows as a tombstone.
		if err := local.Tombstone(ctx, id, m.now()); err != nil {
			return fmt.Errorf("tombstone %s: %w", id, err)
		}
		return nil
	}

	existing, ok, err := local.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("read local %s: %w", id, err)
	}
	if ok {
		if !rec.RecordUpdatedAt().After(existing.RecordUpdatedAt()) {
			return nil
		}
		if equiv != nil && equiv(existing, rec) {
			return nil
		}
	}

	if err := local.ApplyServer(ctx, rec); err != nil {
		return fmt.Errorf("apply %s: %w", id, err)
	}
	return nil
}
