package model

import "time"

// Collection names an entity collection for checkpointing and realtime
// change channels.
type Collection string

const (
	CollectionTasks       Collection = "tasks"
	CollectionLabels      Collection = "labels"
	CollectionTaskLabels  Collection = "task_labels"
	CollectionTemplates   Collection = "templates"
	CollectionSeries      Collection = "series"
	CollectionRecurrences Collection = "recurrences"
	CollectionWorkingLog  Collection = "working_log"
)

// SyncCheckpoint is the per-user, per-collection watermark: the UpdatedAt of
// the newest remote change already applied locally. Always server-sourced,
// never a local clock reading.
type SyncCheckpoint struct {
	UserID        string     `gorm:"primaryKey" json:"user_id"`
	Collection    Collection `gorm:"primaryKey" json:"collection"`
	LastAppliedAt time.Time  `json:"last_applied_at"`
}

// CheckpointSnapshot is the full set of watermarks for one user. A missing
// collection means no pull has ever completed for it.
type CheckpointSnapshot map[Collection]time.Time

// Record is implemented by every syncable entity: a stable identity plus the
// server-authoritative modification timestamp used for last-write-wins.
type Record interface {
	RecordID() string
	RecordUpdatedAt() time.Time
}
