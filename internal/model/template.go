package model

import "time"

// TemplateStatus is the lifecycle state of a template.
type TemplateStatus string

const (
	TemplateActive TemplateStatus = "active"
	TemplatePaused TemplateStatus = "paused"
)

// Template holds the defaults stamped onto generated routine occurrences.
type Template struct {
	ID          string `gorm:"primaryKey" json:"id"`
	UserID      string `gorm:"index" json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	DefaultBucket   Bucket `json:"default_bucket"`
	DefaultDueTime  string `json:"default_due_time,omitempty"` // "HH:MM", empty = date-only
	DefaultPriority int    `json:"default_priority"`

	DefaultLabelIDs []string `gorm:"serializer:json" json:"default_label_ids,omitempty"`

	// EndAfter caps the total number of generated occurrences. Nil = no cap.
	EndAfter *int `json:"end_after,omitempty"`

	Status    TemplateStatus `json:"status"`
	DeletedAt *time.Time     `gorm:"index" json:"deleted_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// RecordID implements Record.
func (t Template) RecordID() string { return t.ID }

// RecordUpdatedAt implements Record.
func (t Template) RecordUpdatedAt() time.Time { return t.UpdatedAt }

// SeriesStatus is the lifecycle state of a series.
type SeriesStatus string

const (
	SeriesActive SeriesStatus = "active"
	SeriesEnded  SeriesStatus = "ended"
)

// Series binds a recurrence rule to a template. Occurrence instances are
// generated from the rule within a rolling forward window.
type Series struct {
	ID         string `gorm:"primaryKey" json:"id"`
	TemplateID string `gorm:"index" json:"template_id"`
	UserID     string `gorm:"index" json:"user_id"`

	// StartOn anchors the rule's interval grid (midnight, series timezone).
	StartOn time.Time  `json:"start_on"`
	EndOn   *time.Time `json:"end_on,omitempty"`

	Timezone string       `json:"timezone,omitempty"`
	Status   SeriesStatus `json:"status"`

	Rule Rule `gorm:"embedded;embeddedPrefix:rule_" json:"rule"`

	// LegacyWeekdays predates Rule; old clients still write it for
	// weekly-only series. EffectiveRule folds it in.
	LegacyWeekdays []time.Weekday `gorm:"serializer:json" json:"legacy_weekdays,omitempty"`

	DeletedAt *time.Time `gorm:"index" json:"deleted_at,omitempty"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`
}

// RecordID implements Record.
func (s Series) RecordID() string { return s.ID }

// RecordUpdatedAt implements Record.
func (s Series) RecordUpdatedAt() time.Time { return s.UpdatedAt }

// EffectiveRule returns the series rule, falling back to the legacy
// weekly-only fields when the rule has no frequency set.
func (s *Series) EffectiveRule() Rule {
	if s.Rule.Frequency != "" {
		return s.Rule
	}
	return Rule{
		Frequency: FreqWeekly,
		Interval:  1,
		Weekdays:  s.LegacyWeekdays,
	}
}

// Location resolves the series timezone, falling back to local time on an
// empty or unknown zone.
func (s *Series) Location() *time.Location {
	if s.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Active reports whether the series should still generate occurrences on
// the given day.
func (s *Series) Active(day time.Time) bool {
	if s.Status != SeriesActive || s.DeletedAt != nil {
		return false
	}
	if s.EndOn != nil && day.After(*s.EndOn) {
		return false
	}
	return true
}
