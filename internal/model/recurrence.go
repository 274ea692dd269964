package model

import "time"

// RecurrenceStatus is the lifecycle state of a task-based recurrence.
type RecurrenceStatus string

const (
	RecurrenceActive RecurrenceStatus = "active"
	RecurrencePaused RecurrenceStatus = "paused"
)

// Recurrence makes an ordinary task recur: TemplateTaskID names a task that
// acts as the template for generated occurrences. This predates Template and
// Series and is kept for users who never migrated; the sync engine refreshes
// these rows pull-only and catches up missed occurrences locally.
type Recurrence struct {
	ID             string `gorm:"primaryKey" json:"id"`
	UserID         string `gorm:"index" json:"user_id"`
	TemplateTaskID string `gorm:"index" json:"template_task_id"`

	Rule   Rule             `gorm:"embedded;embeddedPrefix:rule_" json:"rule"`
	Status RecurrenceStatus `json:"status"`

	LastGeneratedAt *time.Time `json:"last_generated_at,omitempty"`
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`

	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// RecordID implements Record.
func (r Recurrence) RecordID() string { return r.ID }

// RecordUpdatedAt implements Record.
func (r Recurrence) RecordUpdatedAt() time.Time { return r.UpdatedAt }

// WorkingLogItem is a free-form journal entry tied to a point in time.
type WorkingLogItem struct {
	ID          string `gorm:"primaryKey" json:"id"`
	UserID      string `gorm:"index" json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`

	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
	NeedsSync bool       `gorm:"index" json:"-"`
}

// RecordID implements Record.
func (w WorkingLogItem) RecordID() string { return w.ID }

// RecordUpdatedAt implements Record.
func (w WorkingLogItem) RecordUpdatedAt() time.Time { return w.UpdatedAt }

// EquivalentTo reports observable equality, ignoring volatile fields.
func (w *WorkingLogItem) EquivalentTo(o *WorkingLogItem) bool {
	return w.ID == o.ID &&
		w.Title == o.Title &&
		w.Description == o.Description &&
		w.OccurredAt.Equal(o.OccurredAt) &&
		timePtrEqual(w.DeletedAt, o.DeletedAt)
}
