package model

import (
	"fmt"
	"time"
)

// Bucket is the time horizon a task is filed under.
type Bucket string

const (
	BucketThisWeek  Bucket = "this_week"
	BucketWeekend   Bucket = "weekend"
	BucketNextWeek  Bucket = "next_week"
	BucketNextMonth Bucket = "next_month"
	BucketRoutines  Bucket = "routines"
)

// Valid reports whether b is one of the known buckets.
func (b Bucket) Valid() bool {
	switch b {
	case BucketThisWeek, BucketWeekend, BucketNextWeek, BucketNextMonth, BucketRoutines:
		return true
	}
	return false
}

// Field names used in per-task override masks and template diffs.
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldPriority    = "priority"
	FieldLabels      = "labels"
)

// FieldMask is the set of template-managed fields a task has been manually
// diverged on. Template propagation skips any field present in the mask.
type FieldMask []string

// Has reports whether the mask contains the given field name.
func (m FieldMask) Has(field string) bool {
	for _, f := range m {
		if f == field {
			return true
		}
	}
	return false
}

// Task is a single planner item. Generated routine occurrences link back to
// their template and series; the routine "root" task is the parent of all
// occurrences for one (owner, template) pair.
type Task struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"index" json:"user_id"`
	Bucket Bucket `gorm:"index" json:"bucket"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`

	// DueAt is the due timestamp; DueHasTime distinguishes an explicit
	// time of day from a date-only deadline.
	DueAt      *time.Time `json:"due_at,omitempty"`
	DueHasTime bool       `json:"due_has_time"`

	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Position orders tasks within a bucket. Floating point so the UI can
	// reorder by midpoint insertion without rewriting neighbors.
	Position float64 `json:"position"`

	ParentID   *string `gorm:"index" json:"parent_id,omitempty"`
	TemplateID *string `gorm:"index" json:"template_id,omitempty"`
	SeriesID   *string `gorm:"index" json:"series_id,omitempty"`

	// OccurrenceOn is the calendar day (midnight, series timezone) this
	// generated instance represents. Nil for ordinary tasks and roots.
	OccurrenceOn *time.Time `json:"occurrence_on,omitempty"`

	// Overrides lists template-managed fields this task diverged on.
	Overrides FieldMask `gorm:"serializer:json" json:"overrides,omitempty"`

	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`

	// UpdatedAt is server-authoritative once the record has synced.
	UpdatedAt time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`

	// NeedsSync marks unsynced local changes. Never sent to the server.
	NeedsSync bool `gorm:"index" json:"-"`
}

// RecordID implements Record.
func (t Task) RecordID() string { return t.ID }

// RecordUpdatedAt implements Record.
func (t Task) RecordUpdatedAt() time.Time { return t.UpdatedAt }

// Deleted reports whether the task carries a tombstone.
func (t *Task) Deleted() bool { return t.DeletedAt != nil }

// IsRoutineRoot reports whether the task is a routine root: no parent and a
// template link. Roots live in the routines bucket and never carry a due date.
func (t *Task) IsRoutineRoot() bool {
	return t.ParentID == nil && t.TemplateID != nil
}

// Validate checks structural invariants before a local write.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("task user id is required")
	}
	if !t.Bucket.Valid() {
		return fmt.Errorf("invalid bucket %q", t.Bucket)
	}
	if t.IsRoutineRoot() && t.DueAt != nil {
		return fmt.Errorf("routine root %s must not carry a due date", t.ID)
	}
	return nil
}

// EquivalentTo reports whether two versions of a task are observably
// identical, ignoring volatile fields (UpdatedAt, NeedsSync). Used to skip
// redundant local writes during pull so no spurious change notifications fire.
func (t *Task) EquivalentTo(o *Task) bool {
	return t.ID == o.ID &&
		t.Bucket == o.Bucket &&
		t.Title == o.Title &&
		t.Description == o.Description &&
		t.Priority == o.Priority &&
		t.Completed == o.Completed &&
		t.Position == o.Position &&
		t.DueHasTime == o.DueHasTime &&
		timePtrEqual(t.DueAt, o.DueAt) &&
		timePtrEqual(t.CompletedAt, o.CompletedAt) &&
		timePtrEqual(t.DeletedAt, o.DeletedAt)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
