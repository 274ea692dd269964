package series

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/weekfold/weekfold/internal/model"
	"github.com/weekfold/weekfold/internal/recur"
)

// maxCatchUpOccurrences bounds how far a single catch-up run backfills one
// recurrence. Anything older is left for the next cycle.
const maxCatchUpOccurrences = 52

// RecurrenceSource is the slice of the recurrence repository CatchUp needs.
type RecurrenceSource interface {
	// Due returns active recurrences whose NextScheduledAt is at or
	// before asOf.
	Due(ctx context.Context, userID string, asOf time.Time) ([]model.Recurrence, error)

	// Save updates a recurrence's local generation bookkeeping without
	// marking it dirty; recurrence definitions are pull-only.
	Save(ctx context.Context, rec *model.Recurrence) error
}

// TaskCloner is the slice of the task repository CatchUp needs.
type TaskCloner interface {
	ByID(ctx context.Context, id string) (*model.Task, bool, error)

	// OccurrenceExists reports whether a non-deleted occurrence of the
	// template task already exists for the given day.
	OccurrenceExists(ctx context.Context, templateTaskID string, day time.Time) (bool, error)

	Create(ctx context.Context, task *model.Task) error
}

// CatchUp backfills occurrences a task-based recurrence missed while no
// sync cycle ran, then advances its schedule bookkeeping.
type CatchUp struct {
	recs   RecurrenceSource
	tasks  TaskCloner
	logger *log.Logger
	now    func() time.Time
	newID  func() string
}

// NewCatchUp wires a catch-up service. If logger is nil, a default logger
// writing to stderr is used.
func NewCatchUp(recs RecurrenceSource, tasks TaskCloner, logger *log.Logger) *CatchUp {
	if logger == nil {
		logger = log.New(os.Stderr, "[catchup] ", log.LstdFlags)
	}
	return &CatchUp{
		recs:   recs,
		tasks:  tasks,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Run backfills every due recurrence. A failure in one recurrence is logged
// and does not stop the others.
func (c *CatchUp) Run(ctx context.Context, userID string) error {
	now := c.now()
	due, err := c.recs.Due(ctx, userID, now)
	if err != nil {
		return fmt.Errorf("list due recurrences: %w", err)
	}

	for i := range due {
		if err := c.catchUp(ctx, userID, &due[i], now); err != nil {
			c.logger.Printf("WARNING: recurrence %s: %v", due[i].ID, err)
		}
	}
	return nil
}

func (c *CatchUp) catchUp(ctx context.Context, userID string, rec *model.Recurrence, now time.Time) error {
	if rec.NextScheduledAt == nil {
		return nil
	}

	tmpl, ok, err := c.tasks.ByID(ctx, rec.TemplateTaskID)
	if err != nil {
		return fmt.Errorf("load template task %s: %w", rec.TemplateTaskID, err)
	}
	if !ok || tmpl.Deleted() {
		c.logger.Printf("recurrence %s: template task %s gone, skipping", rec.ID, rec.TemplateTaskID)
		return nil
	}

	occ := *rec.NextScheduledAt
	last := rec.LastGeneratedAt
	exhausted := false

	for i := 0; i < maxCatchUpOccurrences && !occ.After(now); i++ {
		day := dateIn(occ, time.Local)

		exists, err := c.tasks.OccurrenceExists(ctx, rec.TemplateTaskID, day)
		if err != nil {
			return fmt.Errorf("check occurrence on %s: %w", day.Format("2006-01-02"), err)
		}
		if !exists {
			clone := c.clone(userID, tmpl, rec, occ, day)
			if err := c.tasks.Create(ctx, clone); err != nil {
				return fmt.Errorf("create occurrence on %s: %w", day.Format("2006-01-02"), err)
			}
		}

		at := occ
		last = &at

		// The current occurrence is on the rule's grid, so it anchors
		// the step to the next one.
		next, ok := recur.Next(rec.Rule, occ, occ, time.Local)
		if !ok {
			exhausted = true
			break
		}
		occ = next
	}

	rec.LastGeneratedAt = last
	// The watermark advances even when the per-run cap stopped the walk
	// short of now, so the next run resumes here instead of re-walking the
	// same grid points. A rule with no further occurrence stops being due.
	if exhausted {
		rec.NextScheduledAt = nil
	} else {
		next := occ
		rec.NextScheduledAt = &next
	}
	if err := c.recs.Save(ctx, rec); err != nil {
		return fmt.Errorf("save schedule bookkeeping: %w", err)
	}
	return nil
}

func (c *CatchUp) clone(userID string, tmpl *model.Task, rec *model.Recurrence, due, day time.Time) *model.Task {
	occ := day
	return &model.Task{
		ID:           c.newID(),
		UserID:       userID,
		Bucket:       tmpl.Bucket,
		Title:        tmpl.Title,
		Description:  tmpl.Description,
		Priority:     tmpl.Priority,
		DueAt:        &due,
		DueHasTime:   rec.Rule.TimeOfDay != "",
		ParentID:     &tmpl.ID,
		OccurrenceOn: &occ,
		UpdatedAt:    c.now(),
		NeedsSync:    true,
	}
}
