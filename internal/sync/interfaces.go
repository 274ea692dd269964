package sync

import (
	"context"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

// LocalStore is the per-collection contract the engine requires from local
// persistence. Implementations must be safe for concurrent use.
type LocalStore[T model.Record] interface {
	// NeedingSync returns the user's dirty, non-deleted records.
	NeedingSync(ctx context.Context, userID string) ([]T, error)

	// Count returns the number of locally stored records for the user,
	// tombstoned ones included. Zero means a cold store.
	Count(ctx context.Context, userID string) (int64, error)

	// Get fetches one record by identity. The second result is false when
	// no such record exists.
	Get(ctx context.Context, id string) (T, bool, error)

	// ApplyServer upserts the server's copy of a record and clears its
	// dirty flag. The server representation wins wholesale.
	ApplyServer(ctx context.Context, rec T) error

	// Tombstone soft-deletes a record without marking it dirty. Used when
	// the remote copy is gone and the local one must follow.
	Tombstone(ctx context.Context, id string, at time.Time) error
}

// RemoteStore is the per-collection contract for the remote backend.
type RemoteStore[T model.Record] interface {
	// Push bulk-upserts dirty records and returns the server-assigned
	// representations, which become authoritative.
	Push(ctx context.Context, recs []T) ([]T, error)

	// PullSince returns the user's records updated strictly after since.
	// A zero since means everything. The view context may narrow the
	// result set; collections it does not apply to ignore it.
	PullSince(ctx context.Context, userID string, since time.Time, view ViewContext) ([]T, error)

	// Fetch retrieves a single record by identity. The second result is
	// false when the record is gone upstream.
	Fetch(ctx context.Context, id string) (T, bool, error)
}

// CheckpointStore persists the per-user, per-collection pull watermarks.
type CheckpointStore interface {
	LoadSnapshot(ctx context.Context, userID string) (model.CheckpointSnapshot, error)
	UpdateCheckpoint(ctx context.Context, userID string, col model.Collection, ts time.Time) error
	Reset(ctx context.Context, userID string) error
}

// ViewContext narrows pull queries to what the host currently displays.
// The zero value pulls the full delta.
type ViewContext struct {
	Bucket *model.Bucket
	DueBy  *time.Time
}

// Empty reports whether the view imposes no narrowing.
func (v ViewContext) Empty() bool {
	return v.Bucket == nil && v.DueBy == nil
}

// RolloverService moves unfinished this-week tasks into next week once per
// calendar week. Implemented by internal/rollover.
type RolloverService interface {
	PerformIfNeeded(ctx context.Context, userID string) (bool, error)
}

// SeriesGenerator expands active series into occurrence tasks within the
// forward window. Implemented by internal/series.
type SeriesGenerator interface {
	GenerateIfNeeded(ctx context.Context, userID string) error
}

// RecurrenceCatchUp generates occurrences missed while the device was
// offline for task-based recurrences. Implemented by internal/series.
type RecurrenceCatchUp interface {
	Run(ctx context.Context, userID string) error
}

// TemplatePropagator cascades template edits onto the open occurrences
// generated from them. Implemented by internal/template.
type TemplatePropagator interface {
	Propagate(ctx context.Context, ownerID string, oldTpl, newTpl *model.Template, effectiveFrom time.Time) error
}

// Backends bundles every store the orchestrator drives.
type Backends struct {
	Tasks       LocalStore[model.Task]
	TasksRemote RemoteStore[model.Task]

	Labels       LocalStore[model.Label]
	LabelsRemote RemoteStore[model.Label]

	TaskLabels       LocalStore[model.TaskLabel]
	TaskLabelsRemote RemoteStore[model.TaskLabel]

	Recurrences       LocalStore[model.Recurrence]
	RecurrencesRemote RemoteStore[model.Recurrence]

	Templates       LocalStore[model.Template]
	TemplatesRemote RemoteStore[model.Template]

	Series       LocalStore[model.Series]
	SeriesRemote RemoteStore[model.Series]

	WorkingLog       LocalStore[model.WorkingLogItem]
	WorkingLogRemote RemoteStore[model.WorkingLogItem]

	Checkpoints CheckpointStore
}

// Services bundles the derived-data generators the orchestrator sequences
// between sync phases.
type Services struct {
	Rollover RolloverService
	Series   SeriesGenerator
	CatchUp  RecurrenceCatchUp

	// Templates, when set, runs after every template update applied during
	// a pull, so edits made on another device cascade locally.
	Templates TemplatePropagator
}

// Options are the feature toggles injected into the orchestrator. They are
// plain data so hosts can derive them from any configuration source.
type Options struct {
	// RoutinesEnabled gates the series generation phase.
	RoutinesEnabled bool

	// RolloverEnabled gates both weekly-rollover checks.
	RolloverEnabled bool
}
