package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weekfold/weekfold/internal/model"
)

// TaskRepo is the task repository. It satisfies the sync engine's
// LocalStore contract plus the narrower slices the series generator,
// rollover, template propagation, and recurrence catch-up consume.
type TaskRepo struct {
	db *gorm.DB
}

// NeedingSync returns the user's dirty, non-deleted tasks.
func (r *TaskRepo) NeedingSync(ctx context.Context, userID string) ([]model.Task, error) {
	var out []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND needs_sync = ? AND deleted_at IS NULL", userID, true).
		Find(&out).Error
	return out, err
}

// Count returns the number of stored tasks for the user, tombstones included.
func (r *TaskRepo) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Get fetches one task by id.
func (r *TaskRepo) Get(ctx context.Context, id string) (model.Task, bool, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Task{}, false, nil
	}
	if err != nil {
		return model.Task{}, false, err
	}
	return task, true, nil
}

// ByID fetches one task as a pointer, for the catch-up service.
func (r *TaskRepo) ByID(ctx context.Context, id string) (*model.Task, bool, error) {
	task, found, err := r.Get(ctx, id)
	if !found || err != nil {
		return nil, found, err
	}
	return &task, true, nil
}

// ApplyServer upserts the server copy of a task and clears its dirty flag.
func (r *TaskRepo) ApplyServer(ctx context.Context, rec model.Task) error {
	rec.NeedsSync = false
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Tombstone soft-deletes a task without marking it dirty. Missing rows are
// ignored (idempotent).
func (r *TaskRepo) Tombstone(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", id).
		Updates(map[string]any{"deleted_at": at, "needs_sync": false}).Error
}

// Create inserts a new local task, validated, marked for sync by the caller.
func (r *TaskRepo) Create(ctx context.Context, task *model.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(task).Error
}

// Update fully replaces a local task.
func (r *TaskRepo) Update(ctx context.Context, task *model.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Save(task)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s: no row updated", task.ID)
	}
	return nil
}

// RoutineRoot returns the single non-deleted root for (user, template).
func (r *TaskRepo) RoutineRoot(ctx context.Context, userID, templateID string) (*model.Task, bool, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND template_id = ? AND parent_id IS NULL AND deleted_at IS NULL", userID, templateID).
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &task, true, nil
}

// ChildOnDate reports whether a non-deleted child exists for the
// idempotency key (series, occurrence day, parent).
func (r *TaskRepo) ChildOnDate(ctx context.Context, seriesID, parentID string, day time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("series_id = ? AND parent_id = ? AND occurrence_on = ? AND deleted_at IS NULL", seriesID, parentID, day).
		Count(&n).Error
	return n > 0, err
}

// CountChildren counts non-deleted generated children of a series.
func (r *TaskRepo) CountChildren(ctx context.Context, seriesID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("series_id = ? AND parent_id IS NOT NULL AND deleted_at IS NULL", seriesID).
		Count(&n).Error
	return n, err
}

// OccurrenceExists reports whether a non-deleted occurrence of a template
// task exists for the given day.
func (r *TaskRepo) OccurrenceExists(ctx context.Context, templateTaskID string, day time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("parent_id = ? AND occurrence_on = ? AND deleted_at IS NULL", templateTaskID, day).
		Count(&n).Error
	return n > 0, err
}

// IncompleteInBucket returns incomplete, non-deleted tasks in the bucket,
// ordered by position.
func (r *TaskRepo) IncompleteInBucket(ctx context.Context, userID string, bucket model.Bucket) ([]model.Task, error) {
	var out []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND bucket = ? AND completed = ? AND deleted_at IS NULL", userID, bucket, false).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

// MaxPosition returns the highest position in use in the bucket.
func (r *TaskRepo) MaxPosition(ctx context.Context, userID string, bucket model.Bucket) (float64, error) {
	var max float64
	err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("user_id = ? AND bucket = ? AND deleted_at IS NULL", userID, bucket).
		Select("COALESCE(MAX(position), 0)").
		Scan(&max).Error
	return max, err
}

// OpenByTemplate returns incomplete, non-deleted occurrences of a template
// on/after from.
func (r *TaskRepo) OpenByTemplate(ctx context.Context, userID, templateID string, from time.Time) ([]model.Task, error) {
	var out []model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND template_id = ? AND parent_id IS NOT NULL AND completed = ? AND deleted_at IS NULL AND occurrence_on >= ?",
			userID, templateID, false, from).
		Find(&out).Error
	return out, err
}
