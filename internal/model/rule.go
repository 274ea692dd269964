package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency is the base period of a recurrence rule.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// Rule is a declarative recurrence rule. The zero interval is treated as 1.
//
// Weekdays, MonthDays, SetPos, and Months narrow which dates match.
// SetPos selects ordinal weekday occurrences within a month ("2nd Tuesday");
// negative values count from the end (-1 = last). MonthDays supports the
// same negative convention (-1 = last day of month).
type Rule struct {
	Frequency Frequency `gorm:"column:freq" json:"frequency"`
	Interval  int       `json:"interval"`

	Weekdays  []time.Weekday `gorm:"serializer:json" json:"weekdays,omitempty"`
	MonthDays []int          `gorm:"serializer:json" json:"month_days,omitempty"`
	SetPos    []int          `gorm:"serializer:json" json:"set_pos,omitempty"`
	Months    []time.Month   `gorm:"serializer:json" json:"months,omitempty"`

	// TimeOfDay is an optional "HH:MM" string composed into generated due
	// timestamps. Empty means date-only occurrences.
	TimeOfDay string `json:"time_of_day,omitempty"`
}

// EffectiveInterval returns the interval with the zero value normalized to 1.
func (r Rule) EffectiveInterval() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

// Validate rejects rules the engine cannot evaluate.
func (r Rule) Validate() error {
	switch r.Frequency {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
	default:
		return fmt.Errorf("unknown frequency %q", r.Frequency)
	}
	if r.Interval < 0 {
		return fmt.Errorf("interval must be >= 1, got %d", r.Interval)
	}
	if r.TimeOfDay != "" {
		if _, _, err := ParseTimeOfDay(r.TimeOfDay); err != nil {
			return err
		}
	}
	return nil
}

// ParseTimeOfDay parses an "HH:MM" string into hour and minute.
func ParseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
