// Package series expands recurrence definitions into concrete task
// occurrences: the Generator materializes template-backed series inside a
// rolling forward window, and CatchUp backfills task-based recurrences that
// fell behind while the device was offline.
//
// Both are idempotent and safe to run every sync cycle; the idempotency key
// for generated children is (series, occurrence date, parent).
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

// windowDays is the rolling forward generation window [today, today+7d).
const windowDays = 7

// SeriesSource lists the series eligible for generation.
type SeriesSource interface {
	// ActiveSeries returns the user's series that are active, not ended,
	// and not soft-deleted.
	ActiveSeries(ctx context.Context, userID string) ([]model.Series, error)
}

// TemplateSource resolves the template a series generates from.
type TemplateSource interface {
	ByID(ctx context.Context, id string) (*model.Template, bool, error)
}

// TaskStore is the slice of the local task repository the generator needs.
type TaskStore interface {
	// RoutineRoot returns the single non-deleted root task for the
	// (user, template) pair, if one exists.
	RoutineRoot(ctx context.Context, userID, templateID string) (*model.Task, bool, error)

	// ChildOnDate reports whether a non-deleted child already exists for
	// (series, occurrence day, parent).
	ChildOnDate(ctx context.Context, seriesID, parentID string, day time.Time) (bool, error)

	// CountChildren returns the number of non-deleted children ever
	// generated for the series, completed ones included.
	CountChildren(ctx context.Context, seriesID string) (int64, error)

	Create(ctx context.Context, task *model.Task) error
}

// LabelLinker copies template default labels onto a generated task.
type LabelLinker interface {
	Link(ctx context.Context, userID, taskID string, labelIDs []string) error
}

// Generator materializes series occurrences. Create one per process and
// call GenerateIfNeeded from the sync cycle.
type Generator struct {
	series    SeriesSource
	templates TemplateSource
	tasks     TaskStore
	links     LabelLinker
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

// NewGenerator wires a generator. If logger is nil, a default logger
// writing to stderr is used.
func NewGenerator(series SeriesSource, templates TemplateSource, tasks TaskStore, links LabelLinker, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(os.Stderr, "[series] ", log.LstdFlags)
	}
	return &Generator{
		series:    series,
		templates: templates,
		tasks:     tasks,
		links:     links,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// GenerateIfNeeded expands every active series into occurrence tasks within
// the forward window. Re-running never duplicates roots or children. A
// failure in one series is logged and does not stop the others.
func (g *Generator) GenerateIfNeeded(ctx context.Context, userID string) error {
	list, err := g.series.ActiveSeries(ctx, userID)
	if err != nil {
		return fmt.Errorf("list active series: %w", err)
	}

	for i := range list {
		if err := g.generateSeries(ctx, userID, &list[i]); err != nil {
			g.logger.Printf("WARNING: series %s: %v", list[i].ID, err)
		}
	}
	return nil
}

func (g *Generator) generateSeries(ctx context.Context, userID string, sr *model.Series) error {
	tpl, ok, err := g.templates.ByID(ctx, sr.TemplateID)
	if err != nil {
		return fmt.Errorf("load template %s: %w", sr.TemplateID, err)
	}
	if !ok || tpl.DeletedAt != nil || tpl.Status != model.TemplateActive {
		// Series without a live template generate nothing.
		return nil
	}

	loc := sr.Location()
	today := dateIn(g.now(), loc)
	if !sr.Active(today) {
		return nil
	}

	root, err := g.ensureRoot(ctx, userID, tpl)
	if err != nil {
		return err
	}

	rule := sr.EffectiveRule()
	anchor := sr.StartOn

	var generated int64 = -1 // lazily counted only when a quota exists
	if tpl.EndAfter != nil {
		generated, err = g.tasks.CountChildren(ctx, sr.ID)
		if err != nil {
			return fmt.Errorf("count children: %w", err)
		}
	}

	for i := 0; i < windowDays; i++ {
		day := today.AddDate(0, 0, i)
		if day.Before(dateIn(anchor, loc)) {
			continue
		}
		if sr.EndOn != nil && day.After(*sr.EndOn) {
			break
		}
		if tpl.EndAfter != nil && generated >= int64(*tpl.EndAfter) {
			break
		}
		if !recur.Matches(rule, anchor, day) {
			continue
		}

		exists, err := g.tasks.ChildOnDate(ctx, sr.ID, root.ID, day)
		if err != nil {
			return fmt.Errorf("check occurrence on %s: %w", day.Format("2006-01-02"), err)
		}
		if exists {
			continue
		}

		child := g.buildChild(userID, sr, tpl, root, rule, day, loc)
		if err := g.tasks.Create(ctx, child); err != nil {
			return fmt.Errorf("create occurrence on %s: %w", day.Format("2006-01-02"), err)
		}
		if len(tpl.DefaultLabelIDs) > 0 {
			if err := g.links.Link(ctx, userID, child.ID, tpl.DefaultLabelIDs); err != nil {
				// The occurrence exists; missing labels are recoverable.
				g.logger.Printf("WARNING: series %s: link labels for %s: %v", sr.ID, child.ID, err)
			}
		}
		if tpl.EndAfter != nil {
			generated++
		}
	}
	return nil
}

// ensureRoot returns the routine root for (user, template), creating it if
// absent. Roots live in the routines bucket and never carry a due date.
func (g *Generator) ensureRoot(ctx context.Context, userID string, tpl *model.Template) (*model.Task, error) {
	root, found, err := g.tasks.RoutineRoot(ctx, userID, tpl.ID)
	if err != nil {
		return nil, fmt.Errorf("load routine root: %w", err)
	}
	if found {
		return root, nil
	}

	root = &model.Task{
		ID:          g.newID(),
		UserID:      userID,
		Bucket:      model.BucketRoutines,
		Title:       tpl.Name,
		Description: tpl.Description,
		Priority:    tpl.DefaultPriority,
		TemplateID:  &tpl.ID,
		UpdatedAt:   g.now(),
		NeedsSync:   true,
	}
	if err := g.tasks.Create(ctx, root); err != nil {
		return nil, fmt.Errorf("create routine root: %w", err)
	}
	return root, nil
}

func (g *Generator) buildChild(userID string, sr *model.Series, tpl *model.Template, root *model.Task, rule model.Rule, day time.Time, loc *time.Location) *model.Task {
	bucket := tpl.DefaultBucket
	if !bucket.Valid() {
		bucket = model.BucketRoutines
	}

	// The rule's time of day wins over the template default.
	tod := rule.TimeOfDay
	if tod == "" {
		tod = tpl.DefaultDueTime
	}

	due := day
	hasTime := false
	if tod != "" {
		if hour, minute, err := model.ParseTimeOfDay(tod); err == nil {
			y, m, d := day.Date()
			due = time.Date(y, m, d, hour, minute, 0, 0, loc)
			hasTime = true
		}
	}

	occ := day
	return &model.Task{
		ID:           g.newID(),
		UserID:       userID,
		Bucket:       bucket,
		Title:        tpl.Name,
		Description:  tpl.Description,
		Priority:     tpl.DefaultPriority,
		DueAt:        &due,
		DueHasTime:   hasTime,
		ParentID:     &root.ID,
		TemplateID:   &tpl.ID,
		SeriesID:     &sr.ID,
		OccurrenceOn: &occ,
		UpdatedAt:    g.now(),
		NeedsSync:    true,
	}
}

// dateIn returns t's calendar day at midnight in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
