// Package rollover moves unfinished this-week tasks into next week once per
// calendar week, preserving their relative order.
//
// The move triggers only from Saturday 00:00 local time through the end of
// the weekend, and at most once per upcoming week. The "performed" marker is
// keyed by the ISO date of the next Monday and persisted through a
// MarkerStore, so a failed run retries on the next cycle.
package rollover

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

// positionStride spaces moved tasks after existing next-week items, leaving
// room for midpoint insertion between them later.
const positionStride = 1024.0

// MarkerStore persists the once-per-week marker.
type MarkerStore interface {
	// LastWeekKey returns the week key of the last performed rollover,
	// or "" when none was ever performed.
	LastWeekKey(userID string) (string, error)

	// MarkPerformed records the rollover for the given week key.
	MarkPerformed(userID, weekKey string) error
}

// TaskMover is the slice of the local task repository the service needs.
type TaskMover interface {
	// IncompleteInBucket returns the user's incomplete, non-deleted tasks
	// in the bucket, ordered by ascending position.
	IncompleteInBucket(ctx context.Context, userID string, bucket model.Bucket) ([]model.Task, error)

	// MaxPosition returns the highest position in use in the bucket, or 0
	// for an empty bucket.
	MaxPosition(ctx context.Context, userID string, bucket model.Bucket) (float64, error)

	Update(ctx context.Context, task *model.Task) error
}

// Service performs the weekly rollover.
type Service struct {
	tasks   TaskMover
	markers MarkerStore
	loc     *time.Location
	logger  *log.Logger
	now     func() time.Time
}

// New wires a rollover service. The location decides when the weekend
// window opens; nil means local time. If logger is nil, a default logger
// writing to stderr is used.
func New(tasks TaskMover, markers MarkerStore, loc *time.Location, logger *log.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[rollover] ", log.LstdFlags)
	}
	return &Service{
		tasks:   tasks,
		markers: markers,
		loc:     loc,
		logger:  logger,
		now:     time.Now,
	}
}

// PerformIfNeeded moves incomplete this-week tasks into next week if the
// weekend window is open and this upcoming week has not been handled yet.
// Returns whether any task moved. On failure nothing is marked, so the next
// cycle retries.
func (s *Service) PerformIfNeeded(ctx context.Context, userID string) (bool, error) {
	now := s.now().In(s.loc)

	if wd := now.Weekday(); wd != time.Saturday && wd != time.Sunday {
		return false, nil
	}

	weekKey := nextMonday(now).Format("2006-01-02")

	last, err := s.markers.LastWeekKey(userID)
	if err != nil {
		// An unreadable marker means "assume not performed": re-running
		// the move is idempotent, skipping a week is not.
		s.logger.Printf("WARNING: failed to read rollover marker: %v", err)
	} else if last == weekKey {
		return false, nil
	}

	moving, err := s.tasks.IncompleteInBucket(ctx, userID, model.BucketThisWeek)
	if err != nil {
		return false, fmt.Errorf("list this-week tasks: %w", err)
	}

	if len(moving) == 0 {
		// Nothing to move; mark anyway so the weekend's remaining cycles
		// skip the check.
		if err := s.markers.MarkPerformed(userID, weekKey); err != nil {
			return false, fmt.Errorf("mark week %s performed: %w", weekKey, err)
		}
		return false, nil
	}

	base, err := s.tasks.MaxPosition(ctx, userID, model.BucketNextWeek)
	if err != nil {
		return false, fmt.Errorf("next-week max position: %w", err)
	}

	// Append after existing next-week items, preserving relative order.
	for i := range moving {
		task := &moving[i]
		task.Bucket = model.BucketNextWeek
		task.Position = base + positionStride*float64(i+1)
		task.NeedsSync = true
		if err := s.tasks.Update(ctx, task); err != nil {
			// Partial moves are fine: the week stays unmarked and the
			// next cycle re-runs; already-moved tasks are no longer in
			// this-week.
			return false, fmt.Errorf("move task %s: %w", task.ID, err)
		}
	}

	if err := s.markers.MarkPerformed(userID, weekKey); err != nil {
		return false, fmt.Errorf("mark week %s performed: %w", weekKey, err)
	}

	s.logger.Printf("rolled %d tasks into next week (%s)", len(moving), weekKey)
	return true, nil
}

// nextMonday returns the Monday strictly after t, at midnight in t's
// location.
func nextMonday(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	offset := (int(time.Monday) - int(day.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return day.AddDate(0, 0, offset)
}
