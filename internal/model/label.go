package model

import "time"

// Label is a user-defined tag. Many-to-many with Task via TaskLabel.
type Label struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"index" json:"user_id"`
	Name   string `json:"name"`
	Color  string `json:"color,omitempty"`

	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
	NeedsSync bool       `gorm:"index" json:"-"`
}

// RecordID implements Record.
func (l Label) RecordID() string { return l.ID }

// RecordUpdatedAt implements Record.
func (l Label) RecordUpdatedAt() time.Time { return l.UpdatedAt }

// EquivalentTo reports observable equality, ignoring volatile fields.
func (l *Label) EquivalentTo(o *Label) bool {
	return l.ID == o.ID &&
		l.Name == o.Name &&
		l.Color == o.Color &&
		timePtrEqual(l.DeletedAt, o.DeletedAt)
}

// TaskLabel is the task/label join row. It carries its own dirty and
// tombstone state so associations sync independently of either side.
type TaskLabel struct {
	TaskID  string `gorm:"primaryKey" json:"task_id"`
	LabelID string `gorm:"primaryKey" json:"label_id"`
	UserID  string `gorm:"index" json:"user_id"`

	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
	NeedsSync bool       `gorm:"index" json:"-"`
}

// RecordID implements Record. Join rows have no surrogate key, so the
// identity is the composite "taskID:labelID".
func (tl TaskLabel) RecordID() string { return tl.TaskID + ":" + tl.LabelID }

// RecordUpdatedAt implements Record.
func (tl TaskLabel) RecordUpdatedAt() time.Time { return tl.UpdatedAt }

// EquivalentTo reports observable equality, ignoring volatile fields.
func (tl *TaskLabel) EquivalentTo(o *TaskLabel) bool {
	return tl.TaskID == o.TaskID &&
		tl.LabelID == o.LabelID &&
		timePtrEqual(tl.DeletedAt, o.DeletedAt)
}
