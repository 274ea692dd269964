// Package recur evaluates declarative recurrence rules.
//
// The engine is pure: given an anchor date (the rule's start, which fixes
// the interval grid) and a lower bound, it computes the next matching
// occurrence. No I/O, no clocks. Iteration is capped so a malformed rule
// yields "no further occurrence" instead of an unbounded search.
package recur

import (
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

// maxSteps bounds the day-by-day search in Next. Roughly 2.7 years of
// candidate days; any real rule matches well within that.
const maxSteps = 1000

// Next returns the first occurrence of rule strictly after the given time.
//
// anchor is the rule's start date and fixes the interval grid: an
// every-2-weeks rule anchored on a Monday matches anchor+14d, anchor+28d,
// and so on, never anchor+7d. The returned time is the occurrence date at
// the rule's time of day (midnight when the rule has none) in loc.
//
// The second return value is false when no occurrence exists within the
// bounded search.
func Next(rule model.Rule, anchor, after time.Time, loc *time.Location) (time.Time, bool) {
	if err := rule.Validate(); err != nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	a := dateIn(anchor, loc)
	start := dateIn(after, loc).AddDate(0, 0, 1)
	if start.Before(a) {
		start = a
	}

	for i := 0; i < maxSteps; i++ {
		d := start.AddDate(0, 0, i)
		if Matches(rule, a, d) {
			return withTimeOfDay(d, rule.TimeOfDay, loc), true
		}
	}
	return time.Time{}, false
}

// Matches reports whether the calendar day of `day` is an occurrence of the
// rule anchored at `anchor`. Both arguments are interpreted by their date
// components only; time of day is ignored.
func Matches(rule model.Rule, anchor, day time.Time) bool {
	a := dateUTC(anchor)
	d := dateUTC(day)
	if d.Before(a) {
		return false
	}

	interval := rule.EffectiveInterval()

	switch rule.Frequency {
	case model.FreqDaily:
		if daysBetween(a, d)%interval != 0 || !monthAllowed(rule.Months, d) {
			return false
		}
		// Optional sets narrow a daily grid: "every day, weekdays only".
		if len(rule.Weekdays) > 0 && !weekdayAllowed(rule.Weekdays, d, a) {
			return false
		}
		if len(rule.MonthDays) > 0 && !monthDayAllowed(rule.MonthDays, d) {
			return false
		}
		return true

	case model.FreqWeekly:
		if !weekdayAllowed(rule.Weekdays, d, a) {
			return false
		}
		weeks := daysBetween(weekStart(a), weekStart(d)) / 7
		return weeks%interval == 0

	case model.FreqMonthly:
		if monthsBetween(a, d)%interval != 0 {
			return false
		}
		if !monthAllowed(rule.Months, d) {
			return false
		}
		return dayOfMonthMatches(rule, a, d)

	case model.FreqYearly:
		if (d.Year()-a.Year())%interval != 0 {
			return false
		}
		if len(rule.Months) > 0 {
			if !monthAllowed(rule.Months, d) {
				return false
			}
		} else if d.Month() != a.Month() {
			return false
		}
		return dayOfMonthMatches(rule, a, d)
	}
	return false
}

// dayOfMonthMatches applies the month-day set, the ordinal set-position
// filter, or the anchor's day of month, in that order of precedence.
func dayOfMonthMatches(rule model.Rule, anchor, d time.Time) bool {
	last := lastDayOfMonth(d)

	if len(rule.MonthDays) > 0 {
		return monthDayAllowed(rule.MonthDays, d)
	}

	if len(rule.SetPos) > 0 && len(rule.Weekdays) > 0 {
		if !weekdayAllowed(rule.Weekdays, d, anchor) {
			return false
		}
		pos := (d.Day()-1)/7 + 1          // nth weekday from the start
		negPos := -((last-d.Day())/7 + 1) // nth weekday from the end
		for _, sp := range rule.SetPos {
			if sp == pos || sp == negPos {
				return true
			}
		}
		return false
	}

	if len(rule.Weekdays) > 0 {
		return weekdayAllowed(rule.Weekdays, d, anchor)
	}

	return d.Day() == anchor.Day()
}

// weekdayAllowed checks d against the weekday set, defaulting to the
// anchor's weekday when the set is empty.
func weekdayAllowed(set []time.Weekday, d, anchor time.Time) bool {
	if len(set) == 0 {
		return d.Weekday() == anchor.Weekday()
	}
	for _, wd := range set {
		if d.Weekday() == wd {
			return true
		}
	}
	return false
}

// monthDayAllowed checks d's day of month against the set; negative entries
// count back from the month's end (-1 = last day).
func monthDayAllowed(set []int, d time.Time) bool {
	last := lastDayOfMonth(d)
	for _, md := range set {
		want := md
		if md < 0 {
			want = last + md + 1
		}
		if d.Day() == want {
			return true
		}
	}
	return false
}

func monthAllowed(set []time.Month, d time.Time) bool {
	if len(set) == 0 {
		return true
	}
	for _, m := range set {
		if d.Month() == m {
			return true
		}
	}
	return false
}

// dateUTC normalizes t to its calendar day at midnight UTC so grid
// arithmetic is immune to DST transitions.
func dateUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dateIn returns t's calendar day at midnight in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func daysBetween(a, b time.Time) int {
	return int(dateUTC(b).Sub(dateUTC(a)).Hours() / 24)
}

// weekStart returns the Monday of t's week.
func weekStart(t time.Time) time.Time {
	d := dateUTC(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday = 0
	return d.AddDate(0, 0, -offset)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

func lastDayOfMonth(t time.Time) int {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// withTimeOfDay composes a date with an "HH:MM" time of day in loc.
// An empty or malformed time of day yields midnight.
func withTimeOfDay(day time.Time, tod string, loc *time.Location) time.Time {
	if tod == "" {
		return day
	}
	hour, minute, err := model.ParseTimeOfDay(tod)
	if err != nil {
		return day
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc)
}
