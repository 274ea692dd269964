// Package template cascades template edits onto the still-open occurrences
// generated from them.
//
// Propagation respects each task's per-field exception mask: a field the
// user diverged manually is never overwritten. Label propagation replaces
// the task's label set with the template's current defaults wholesale; it
// does not merge.
package template

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"time"

	"github.com/weekfold/weekfold/internal/model"
)

// TaskSource is the slice of the local task repository the propagator needs.
type TaskSource interface {
	// OpenByTemplate returns the user's incomplete, non-deleted tasks
	// linked to the template with an occurrence date on/after from.
	OpenByTemplate(ctx context.Context, userID, templateID string, from time.Time) ([]model.Task, error)

	Update(ctx context.Context, task *model.Task) error
}

// LabelSetter replaces a task's full label set.
type LabelSetter interface {
	ReplaceForTask(ctx context.Context, userID, taskID string, labelIDs []string) error
}

// Propagator applies template edits to generated occurrences.
type Propagator struct {
	tasks  TaskSource
	labels LabelSetter
	logger *log.Logger
}

// New wires a propagator. If logger is nil, a default logger writing to
// stderr is used.
func New(tasks TaskSource, labels LabelSetter, logger *log.Logger) *Propagator {
	if logger == nil {
		logger = log.New(os.Stderr, "[template] ", log.LstdFlags)
	}
	return &Propagator{tasks: tasks, labels: labels, logger: logger}
}

// Propagate computes the changed fields between two template versions and
// applies them to the template's open occurrences on/after effectiveFrom.
// Per-task failures are logged and skipped.
func (p *Propagator) Propagate(ctx context.Context, ownerID string, oldTpl, newTpl *model.Template, effectiveFrom time.Time) error {
	changed := changedFields(oldTpl, newTpl)
	if len(changed) == 0 {
		return nil
	}

	tasks, err := p.tasks.OpenByTemplate(ctx, ownerID, newTpl.ID, effectiveFrom)
	if err != nil {
		return fmt.Errorf("list open occurrences of template %s: %w", newTpl.ID, err)
	}

	for i := range tasks {
		if err := p.applyTo(ctx, ownerID, &tasks[i], newTpl, changed); err != nil {
			p.logger.Printf("WARNING: propagate to task %s: %v", tasks[i].ID, err)
		}
	}
	return nil
}

func (p *Propagator) applyTo(ctx context.Context, ownerID string, task *model.Task, tpl *model.Template, changed []string) error {
	touched := false
	for _, field := range changed {
		// The exception mask wins: a manually diverged field stays put.
		if task.Overrides.Has(field) {
			continue
		}

		switch field {
		case model.FieldTitle:
			task.Title = tpl.Name
			touched = true
		case model.FieldDescription:
			task.Description = tpl.Description
			touched = true
		case model.FieldPriority:
			task.Priority = tpl.DefaultPriority
			touched = true
		case model.FieldLabels:
			if err := p.labels.ReplaceForTask(ctx, ownerID, task.ID, tpl.DefaultLabelIDs); err != nil {
				return fmt.Errorf("replace labels: %w", err)
			}
		}
	}

	if !touched {
		return nil
	}
	task.NeedsSync = true
	return p.tasks.Update(ctx, task)
}

// changedFields diffs the template-managed fields of two template versions.
func changedFields(oldTpl, newTpl *model.Template) []string {
	var changed []string
	if oldTpl.Name != newTpl.Name {
		changed = append(changed, model.FieldTitle)
	}
	if oldTpl.Description != newTpl.Description {
		changed = append(changed, model.FieldDescription)
	}
	if oldTpl.DefaultPriority != newTpl.DefaultPriority {
		changed = append(changed, model.FieldPriority)
	}
	if !slices.Equal(oldTpl.DefaultLabelIDs, newTpl.DefaultLabelIDs) {
		changed = append(changed, model.FieldLabels)
	}
	return changed
}
