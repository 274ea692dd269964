package local

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "weekfold.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTask(id string) *model.Task {
	return &model.Task{
		ID:        id,
		UserID:    "u1",
		Bucket:    model.BucketThisWeek,
		Title:     "Buy milk",
		Position:  1,
		UpdatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		NeedsSync: true,
	}
}

func TestTaskLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.Tasks.Create(ctx, newTask("t1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dirty, err := store.Tasks.NeedingSync(ctx, "u1")
	if err != nil || len(dirty) != 1 {
		t.Fatalf("NeedingSync = %d records, err %v; want 1", len(dirty), err)
	}

	// The server echo clears the dirty flag and becomes authoritative.
	server := dirty[0]
	server.Title = "Buy oat milk"
	server.UpdatedAt = server.UpdatedAt.Add(time.Second)
	if err := store.Tasks.ApplyServer(ctx, server); err != nil {
		t.Fatalf("ApplyServer: %v", err)
	}

	dirty, _ = store.Tasks.NeedingSync(ctx, "u1")
	if len(dirty) != 0 {
		t.Errorf("NeedingSync after ApplyServer = %d, want 0", len(dirty))
	}
	got, found, err := store.Tasks.Get(ctx, "t1")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.Title != "Buy oat milk" {
		t.Errorf("Title = %q, want server copy", got.Title)
	}

	// Tombstoning hides the task from dirty queries but keeps the row.
	if err := store.Tasks.Tombstone(ctx, "t1", time.Now()); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}
	got, _, _ = store.Tasks.Get(ctx, "t1")
	if got.DeletedAt == nil {
		t.Error("DeletedAt not set after Tombstone")
	}
	if n, _ := store.Tasks.Count(ctx, "u1"); n != 1 {
		t.Errorf("Count = %d, want tombstone still counted", n)
	}
}

func TestTaskCreateValidates(t *testing.T) {
	store := openTestStore(t)

	bad := newTask("t1")
	bad.Bucket = "someday"
	if err := store.Tasks.Create(context.Background(), bad); err == nil {
		t.Error("Create accepted an invalid bucket")
	}

	tpl := "tpl1"
	root := newTask("t2")
	root.TemplateID = &tpl
	due := time.Now()
	root.DueAt = &due
	if err := store.Tasks.Create(context.Background(), root); err == nil {
		t.Error("Create accepted a routine root with a due date")
	}
}

func TestRoutineRootAndChildren(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	tpl := "tpl1"

	root := newTask("root")
	root.Bucket = model.BucketRoutines
	root.TemplateID = &tpl
	if err := store.Tasks.Create(ctx, root); err != nil {
		t.Fatalf("create root: %v", err)
	}

	got, found, err := store.Tasks.RoutineRoot(ctx, "u1", "tpl1")
	if err != nil || !found {
		t.Fatalf("RoutineRoot: found=%v err=%v", found, err)
	}
	if got.ID != "root" {
		t.Errorf("RoutineRoot = %s, want root", got.ID)
	}

	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	series := "s1"
	child := newTask("child")
	child.ParentID = &root.ID
	child.TemplateID = &tpl
	child.SeriesID = &series
	child.OccurrenceOn = &day
	if err := store.Tasks.Create(ctx, child); err != nil {
		t.Fatalf("create child: %v", err)
	}

	exists, err := store.Tasks.ChildOnDate(ctx, "s1", "root", day)
	if err != nil || !exists {
		t.Errorf("ChildOnDate = %v err %v, want true", exists, err)
	}
	exists, _ = store.Tasks.ChildOnDate(ctx, "s1", "root", day.AddDate(0, 0, 1))
	if exists {
		t.Error("ChildOnDate true for a day with no child")
	}
	if n, _ := store.Tasks.CountChildren(ctx, "s1"); n != 1 {
		t.Errorf("CountChildren = %d, want 1", n)
	}
}

func TestMaxPositionEmptyBucket(t *testing.T) {
	store := openTestStore(t)

	max, err := store.Tasks.MaxPosition(context.Background(), "u1", model.BucketNextWeek)
	if err != nil {
		t.Fatalf("MaxPosition: %v", err)
	}
	if max != 0 {
		t.Errorf("MaxPosition on empty bucket = %v, want 0", max)
	}
}

func TestTaskLabelCompositeIdentity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.TaskLabels.Link(ctx, "u1", "t1", []string{"l1", "l2"}); err != nil {
		t.Fatalf("Link: %v", err)
	}

	row, found, err := store.TaskLabels.Get(ctx, "t1:l1")
	if err != nil || !found {
		t.Fatalf("Get t1:l1: found=%v err=%v", found, err)
	}
	if !row.NeedsSync {
		t.Error("linked row not marked dirty")
	}

	if _, _, err := store.TaskLabels.Get(ctx, "malformed"); err == nil {
		t.Error("Get accepted a malformed composite id")
	}
}

func TestReplaceForTaskTombstonesRemoved(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.TaskLabels.Link(ctx, "u1", "t1", []string{"l1", "l2"}); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := store.TaskLabels.ReplaceForTask(ctx, "u1", "t1", []string{"l2", "l3"}); err != nil {
		t.Fatalf("ReplaceForTask: %v", err)
	}

	removed, _, _ := store.TaskLabels.Get(ctx, "t1:l1")
	if removed.DeletedAt == nil {
		t.Error("removed label not tombstoned")
	}
	if !removed.NeedsSync {
		t.Error("removal not marked dirty; it would never sync")
	}

	kept, found, _ := store.TaskLabels.Get(ctx, "t1:l2")
	if !found || kept.DeletedAt != nil {
		t.Errorf("kept label: found=%v deleted=%v", found, kept.DeletedAt)
	}
	added, found, _ := store.TaskLabels.Get(ctx, "t1:l3")
	if !found || !added.NeedsSync {
		t.Errorf("added label: found=%v dirty=%v", found, added.NeedsSync)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	snap, err := store.Checkpoints.LoadSnapshot(ctx, "u1")
	if err != nil || len(snap) != 0 {
		t.Fatalf("fresh snapshot = %v err %v, want empty", snap, err)
	}

	ts := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	if err := store.Checkpoints.UpdateCheckpoint(ctx, "u1", model.CollectionTasks, ts); err != nil {
		t.Fatalf("UpdateCheckpoint: %v", err)
	}
	// Upsert on the same key advances in place.
	if err := store.Checkpoints.UpdateCheckpoint(ctx, "u1", model.CollectionTasks, ts.Add(time.Minute)); err != nil {
		t.Fatalf("UpdateCheckpoint again: %v", err)
	}

	snap, _ = store.Checkpoints.LoadSnapshot(ctx, "u1")
	if len(snap) != 1 || !snap[model.CollectionTasks].Equal(ts.Add(time.Minute)) {
		t.Errorf("snapshot = %v, want single advanced watermark", snap)
	}

	if err := store.Checkpoints.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap, _ = store.Checkpoints.LoadSnapshot(ctx, "u1")
	if len(snap) != 0 {
		t.Errorf("snapshot after reset = %v, want empty", snap)
	}
}
