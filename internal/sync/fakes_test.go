package sync

import (
	"context"
	"io"
	"log"
	"sort"
	gosync "sync"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

// memLocal is an in-memory LocalStore.
type memLocal[T model.Record] struct {
	mu         gosync.Mutex
	recs       map[string]T
	dirty      map[string]bool
	tombstones map[string]time.Time
	applied    []string
	applyErr   error
}

func newMemLocal[T model.Record]() *memLocal[T] {
	return &memLocal[T]{
		recs:       make(map[string]T),
		dirty:      make(map[string]bool),
		tombstones: make(map[string]time.Time),
	}
}

func (s *memLocal[T]) seed(rec T, dirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.RecordID()] = rec
	if dirty {
		s.dirty[rec.RecordID()] = true
	}
}

func (s *memLocal[T]) NeedingSync(ctx context.Context, userID string) ([]T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.recs[id])
	}
	return out, nil
}

func (s *memLocal[T]) Count(ctx context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.recs)), nil
}

func (s *memLocal[T]) Get(ctx context.Context, id string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	return rec, ok, nil
}

func (s *memLocal[T]) ApplyServer(ctx context.Context, rec T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.recs[rec.RecordID()] = rec
	delete(s.dirty, rec.RecordID())
	s.applied = append(s.applied, rec.RecordID())
	return nil
}

func (s *memLocal[T]) Tombstone(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstones[id] = at
	delete(s.dirty, id)
	return nil
}

func (s *memLocal[T]) dirtyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty)
}

// pullCall records one PullSince invocation.
type pullCall struct {
	since time.Time
	view  ViewContext
}

// memRemote is an in-memory RemoteStore. Push echoes its input unless a hook
// overrides it; PullSince filters rows on RecordUpdatedAt unless a hook
// overrides it.
type memRemote[T model.Record] struct {
	mu        gosync.Mutex
	rows      []T
	fetchRows map[string]T

	pushes [][]T
	pushFn func(recs []T) ([]T, error)

	pulls  []pullCall
	pullFn func(since time.Time, view ViewContext) ([]T, error)
}

func newMemRemote[T model.Record]() *memRemote[T] {
	return &memRemote[T]{fetchRows: make(map[string]T)}
}

func (r *memRemote[T]) Push(ctx context.Context, recs []T) ([]T, error) {
	r.mu.Lock()
	cp := make([]T, len(recs))
	copy(cp, recs)
	r.pushes = append(r.pushes, cp)
	fn := r.pushFn
	r.mu.Unlock()

	if fn != nil {
		return fn(recs)
	}
	return recs, nil
}

func (r *memRemote[T]) PullSince(ctx context.Context, userID string, since time.Time, view ViewContext) ([]T, error) {
	r.mu.Lock()
	r.pulls = append(r.pulls, pullCall{since: since, view: view})
	fn := r.pullFn
	rows := r.rows
	r.mu.Unlock()

	if fn != nil {
		return fn(since, view)
	}
	var out []T
	for _, row := range rows {
		if since.IsZero() || row.RecordUpdatedAt().After(since) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *memRemote[T]) Fetch(ctx context.Context, id string) (T, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.fetchRows[id]
	return rec, ok, nil
}

func (r *memRemote[T]) pullCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pulls)
}

// memCheckpoints is an in-memory CheckpointStore.
type memCheckpoints struct {
	mu    gosync.Mutex
	snaps map[string]model.CheckpointSnapshot
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{snaps: make(map[string]model.CheckpointSnapshot)}
}

func (c *memCheckpoints) set(userID string, col model.Collection, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snaps[userID] == nil {
		c.snaps[userID] = model.CheckpointSnapshot{}
	}
	c.snaps[userID][col] = ts
}

func (c *memCheckpoints) get(userID string, col model.Collection) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.snaps[userID][col]
	return ts, ok
}

func (c *memCheckpoints) LoadSnapshot(ctx context.Context, userID string) (model.CheckpointSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := model.CheckpointSnapshot{}
	for col, ts := range c.snaps[userID] {
		out[col] = ts
	}
	return out, nil
}

func (c *memCheckpoints) UpdateCheckpoint(ctx context.Context, userID string, col model.Collection, ts time.Time) error {
	c.set(userID, col, ts)
	return nil
}

func (c *memCheckpoints) Reset(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, userID)
	return nil
}

// fixture wires in-memory backends for every collection.
type fixture struct {
	tasksL *memLocal[model.Task]
	tasksR *memRemote[model.Task]

	labelsL *memLocal[model.Label]
	labelsR *memRemote[model.Label]

	taskLabelsL *memLocal[model.TaskLabel]
	taskLabelsR *memRemote[model.TaskLabel]

	recurrencesL *memLocal[model.Recurrence]
	recurrencesR *memRemote[model.Recurrence]

	templatesL *memLocal[model.Template]
	templatesR *memRemote[model.Template]

	seriesL *memLocal[model.Series]
	seriesR *memRemote[model.Series]

	workingLogL *memLocal[model.WorkingLogItem]
	workingLogR *memRemote[model.WorkingLogItem]

	cps *memCheckpoints
}

func newFixture() *fixture {
	return &fixture{
		tasksL: newMemLocal[model.Task](), tasksR: newMemRemote[model.Task](),
		labelsL: newMemLocal[model.Label](), labelsR: newMemRemote[model.Label](),
		taskLabelsL: newMemLocal[model.TaskLabel](), taskLabelsR: newMemRemote[model.TaskLabel](),
		recurrencesL: newMemLocal[model.Recurrence](), recurrencesR: newMemRemote[model.Recurrence](),
		templatesL: newMemLocal[model.Template](), templatesR: newMemRemote[model.Template](),
		seriesL: newMemLocal[model.Series](), seriesR: newMemRemote[model.Series](),
		workingLogL: newMemLocal[model.WorkingLogItem](), workingLogR: newMemRemote[model.WorkingLogItem](),
		cps: newMemCheckpoints(),
	}
}

func (f *fixture) backends() Backends {
	return Backends{
		Tasks: f.tasksL, TasksRemote: f.tasksR,
		Labels: f.labelsL, LabelsRemote: f.labelsR,
		TaskLabels: f.taskLabelsL, TaskLabelsRemote: f.taskLabelsR,
		Recurrences: f.recurrencesL, RecurrencesRemote: f.recurrencesR,
		Templates: f.templatesL, TemplatesRemote: f.templatesR,
		Series: f.seriesL, SeriesRemote: f.seriesR,
		WorkingLog: f.workingLogL, WorkingLogRemote: f.workingLogR,
		Checkpoints: f.cps,
	}
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// newTestOrchestrator builds an orchestrator with zero backoff so retry
// tests run instantly.
func newTestOrchestrator(f *fixture, services Services, opts Options) *Orchestrator {
	o := New(f.backends(), services, opts, testLogger())
	o.backoff = func(int) time.Duration { return 0 }
	return o
}

func testTask(id string, updated time.Time, title string) model.Task {
	return model.Task{
		ID:        id,
		UserID:    "u1",
		Bucket:    model.BucketThisWeek,
		Title:     title,
		UpdatedAt: updated,
	}
}
