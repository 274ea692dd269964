package template

import (
	"context"
	"errors"
	"io"
	"log"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/weekfold/weekfold/internal/model"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

type memTaskSource struct {
	mu        gosync.Mutex
	tasks     []model.Task
	updateErr map[string]error
}

func (s *memTaskSource) OpenByTemplate(ctx context.Context, userID, templateID string, from time.Time) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Task
	for _, t := range s.tasks {
		if t.UserID != userID || t.TemplateID == nil || *t.TemplateID != templateID {
			continue
		}
		if t.Completed || t.DeletedAt != nil {
			continue
		}
		if t.OccurrenceOn != nil && t.OccurrenceOn.Before(from) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *memTaskSource) Update(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErr[task.ID]; err != nil {
		return err
	}
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID {
			s.tasks[i] = *task
			return nil
		}
	}
	return errors.New("no such task")
}

func (s *memTaskSource) byID(id string) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return model.Task{}
}

type replaceCall struct {
	taskID   string
	labelIDs []string
}

type memLabelSetter struct {
	mu    gosync.Mutex
	calls []replaceCall
	err   error
}

func (l *memLabelSetter) ReplaceForTask(ctx context.Context, userID, taskID string, labelIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, replaceCall{taskID: taskID, labelIDs: labelIDs})
	return l.err
}

var (
	tplID     = "tpl1"
	weekStart = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
)

func occurrence(id string, day time.Time, overrides model.FieldMask) model.Task {
	return model.Task{
		ID:           id,
		UserID:       "u1",
		Bucket:       model.BucketThisWeek,
		Title:        "Old title",
		Description:  "Old description",
		Priority:     1,
		TemplateID:   &tplID,
		OccurrenceOn: &day,
		Overrides:    overrides,
	}
}

func templates() (oldTpl, newTpl model.Template) {
	oldTpl = model.Template{
		ID:              tplID,
		UserID:          "u1",
		Name:            "Old title",
		Description:     "Old description",
		DefaultPriority: 1,
		Status:          model.TemplateActive,
	}
	newTpl = oldTpl
	newTpl.Name = "New title"
	newTpl.Description = "New description"
	newTpl.DefaultPriority = 3
	return oldTpl, newTpl
}

func TestPropagateAppliesChangedFields(t *testing.T) {
	source := &memTaskSource{tasks: []model.Task{
		occurrence("t1", weekStart.AddDate(0, 0, 1), nil),
	}}
	labels := &memLabelSetter{}
	oldTpl, newTpl := templates()

	p := New(source, labels, testLogger())
	if err := p.Propagate(context.Background(), "u1", &oldTpl, &newTpl, weekStart); err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	got := source.byID("t1")
	want := occurrence("t1", weekStart.AddDate(0, 0, 1), nil)
	want.Title = "New title"
	want.Description = "New description"
	want.Priority = 3
	want.NeedsSync = true

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("task after propagation mismatch (-want +got):\n%s", diff)
	}
}

func TestPropagateRespectsExceptionMask(t *testing.T) {
	source := &memTaskSource{tasks: []model.Task{
		occurrence("t1", weekStart, model.FieldMask{model.FieldTitle}),
	}}
	oldTpl, newTpl := templates()

	p := New(source, &memLabelSetter{}, testLogger())
	if err := p.Propagate(context.Background(), "u1", &oldTpl, &newTpl, weekStart); err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	got := source.byID("t1")
	if got.Title != "Old title" {
		t.Errorf("Title = %q, want diverged value kept", got.Title)
	}
	if got.Description != "New description" {
		t.Errorf("Description = %q, want propagated", got.Description)
	}
	if got.Priority != 3 {
		t.Errorf("Priority = %d, want propagated", got.Priority)
	}
}

func TestPropagateReplacesLabelsWholesale(t *testing.T) {
	source := &memTaskSource{tasks: []model.Task{occurrence("t1", weekStart, nil)}}
	labels := &memLabelSetter{}

	oldTpl, newTpl := templates()
	newTpl = oldTpl // only the label set changes
	newTpl.DefaultLabelIDs = []string{"l1", "l2"}

	p := New(source, labels, testLogger())
	if err := p.Propagate(context.Background(), "u1", &oldTpl, &newTpl, weekStart); err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	if len(labels.calls) != 1 {
		t.Fatalf("ReplaceForTask calls = %d, want 1", len(labels.calls))
	}
	if diff := cmp.Diff([]string{"l1", "l2"}, labels.calls[0].labelIDs); diff != "" {
		t.Errorf("replaced labels mismatch (-want +got):\n%s", diff)
	}

	// Labels alone do not rewrite the task row.
	if got := source.byID("t1"); got.NeedsSync {
		t.Error("task marked dirty by label-only propagation")
	}
}

func TestPropagateLabelMaskBlocksReplacement(t *testing.T) {
	source := &memTaskSource{tasks: []model.Task{
		occurrence("t1", weekStart, model.FieldMask{model.FieldLabels}),
	}}
	labels := &memLabelSetter{}

	oldTpl, newTpl := templates()
	newTpl = oldTpl
	newTpl.DefaultLabelIDs = []string{"l1"}

	p := New(source, labels, testLogger())
	if err := p.Propagate(context.Background(), "u1", &oldTpl, &newTpl, weekStart); err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if len(labels.calls) != 0 {
		t.Errorf("ReplaceForTask calls = %d, want 0 for masked labels", len(labels.calls))
	}
}

func TestPropagateNoChangesIsNoop(t *testing.T) {
	source := &memTaskSource{tasks: []model.Task{occurrence("t1", weekStart, nil)}}
	oldTpl, _ := templates()
	same := oldTpl

	p := New(source, &memLabelSetter{}, testLogger())
	if err := p.Propagate(context.Background(), "u1", &oldTpl, &same, weekStart); err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	if got := source.byID("t1"); got.NeedsSync {
		t.Error("task touched despite identical templates")
	}
}

func TestPropagateSkipsFailedTask(t *testing.T) {
	source := &memTaskSource{
		tasks: []model.Task{
			occurrence("t1", weekStart, nil),
			occurrence("t2", weekStart, nil),
		},
		updateErr: map[string]error{"t1": errors.New("locked")},
	}
	oldTpl, newTpl := templates()

	p := New(source, &memLabelSetter{}, testLogger())
	if err := p.Propagate(context.Background(), "u1", &oldTpl, &newTpl, weekStart); err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	if got := source.byID("t2"); got.Title != "New title" {
		t.Errorf("t2 title = %q, want propagation to continue past t1's failure", got.Title)
	}
}

func TestPropagateSkipsOccurrencesBeforeEffectiveDate(t *testing.T) {
	source := &memTaskSource{tasks: []model.Task{
		occurrence("past", weekStart.AddDate(0, 0, -7), nil),
		occurrence("future", weekStart.AddDate(0, 0, 1), nil),
	}}
	oldTpl, newTpl := templates()

	p := New(source, &memLabelSetter{}, testLogger())
	if err := p.Propagate(context.Background(), "u1", &oldTpl, &newTpl, weekStart); err != nil {
		t.Fatalf("Propagate: %v", err)
	}

	if got := source.byID("past"); got.Title != "Old title" {
		t.Errorf("past occurrence title = %q, want untouched", got.Title)
	}
	if got := source.byID("future"); got.Title != "New title" {
		t.Errorf("future occurrence title = %q, want propagated", got.Title)
	}
}
