package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weekfold/weekfold/internal/model"
)

// LabelRepo is the label repository.
type LabelRepo struct {
	db *gorm.DB
}

// NeedingSync returns the user's dirty, non-deleted labels.
func (r *LabelRepo) NeedingSync(ctx context.Context, userID string) ([]model.Label, error) {
	var out []model.Label
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND needs_sync = ? AND deleted_at IS NULL", userID, true).
		Find(&out).Error
	return out, err
}

// Count returns the number of stored labels for the user.
func (r *LabelRepo) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Label{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Get fetches one label by id.
func (r *LabelRepo) Get(ctx context.Context, id string) (model.Label, bool, error) {
	var label model.Label
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Label{}, false, nil
	}
	if err != nil {
		return model.Label{}, false, err
	}
	return label, true, nil
}

// ApplyServer upserts the server copy of a label and clears its dirty flag.
func (r *LabelRepo) ApplyServer(ctx context.Context, rec model.Label) error {
	rec.NeedsSync = false
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Tombstone soft-deletes a label without marking it dirty.
func (r *LabelRepo) Tombstone(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Label{}).
		Where("id = ?", id).
		Updates(map[string]any{"deleted_at": at, "needs_sync": false}).Error
}

// TaskLabelRepo is the task/label join repository. Join rows have the
// composite identity "taskID:labelID".
type TaskLabelRepo struct {
	db *gorm.DB
}

// splitJoinID parses the composite "taskID:labelID" identity.
func splitJoinID(id string) (taskID, labelID string, err error) {
	taskID, labelID, ok := strings.Cut(id, ":")
	if !ok || taskID == "" || labelID == "" {
		return "", "", fmt.Errorf("malformed task-label id %q", id)
	}
	return taskID, labelID, nil
}

// NeedingSync returns the user's dirty, non-deleted join rows.
func (r *TaskLabelRepo) NeedingSync(ctx context.Context, userID string) ([]model.TaskLabel, error) {
	var out []model.TaskLabel
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND needs_sync = ? AND deleted_at IS NULL", userID, true).
		Find(&out).Error
	return out, err
}

// Count returns the number of stored join rows for the user.
func (r *TaskLabelRepo) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.TaskLabel{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Get fetches one join row by its composite id.
func (r *TaskLabelRepo) Get(ctx context.Context, id string) (model.TaskLabel, bool, error) {
	taskID, labelID, err := splitJoinID(id)
	if err != nil {
		return model.TaskLabel{}, false, err
	}

	var row model.TaskLabel
	err = r.db.WithContext(ctx).
		Where("task_id = ? AND label_id = ?", taskID, labelID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.TaskLabel{}, false, nil
	}
	if err != nil {
		return model.TaskLabel{}, false, err
	}
	return row, true, nil
}

// ApplyServer upserts the server copy of a join row and clears its dirty flag.
func (r *TaskLabelRepo) ApplyServer(ctx context.Context, rec model.TaskLabel) error {
	rec.NeedsSync = false
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Tombstone soft-deletes a join row without marking it dirty.
func (r *TaskLabelRepo) Tombstone(ctx context.Context, id string, at time.Time) error {
	taskID, labelID, err := splitJoinID(id)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(&model.TaskLabel{}).
		Where("task_id = ? AND label_id = ?", taskID, labelID).
		Updates(map[string]any{"deleted_at": at, "needs_sync": false}).Error
}

// Link attaches labels to a task as dirty join rows, reviving tombstoned
// ones. Used when the series generator copies template defaults.
func (r *TaskLabelRepo) Link(ctx context.Context, userID, taskID string, labelIDs []string) error {
	now := time.Now()
	for _, labelID := range labelIDs {
		row := model.TaskLabel{
			TaskID:    taskID,
			LabelID:   labelID,
			UserID:    userID,
			UpdatedAt: now,
			NeedsSync: true,
		}
		if err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(&row).Error; err != nil {
			return fmt.Errorf("link %s to %s: %w", labelID, taskID, err)
		}
	}
	return nil
}

// ReplaceForTask replaces the task's full label set with labelIDs:
// everything else is tombstoned dirty so the removal syncs too.
func (r *TaskLabelRepo) ReplaceForTask(ctx context.Context, userID, taskID string, labelIDs []string) error {
	now := time.Now()

	keep := make(map[string]bool, len(labelIDs))
	for _, id := range labelIDs {
		keep[id] = true
	}

	var existing []model.TaskLabel
	if err := r.db.WithContext(ctx).
		Where("task_id = ? AND deleted_at IS NULL", taskID).
		Find(&existing).Error; err != nil {
		return err
	}

	for i := range existing {
		if keep[existing[i].LabelID] {
			continue
		}
		if err := r.db.WithContext(ctx).Model(&model.TaskLabel{}).
			Where("task_id = ? AND label_id = ?", taskID, existing[i].LabelID).
			Updates(map[string]any{"deleted_at": now, "needs_sync": true, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("unlink %s from %s: %w", existing[i].LabelID, taskID, err)
		}
	}

	return r.Link(ctx, userID, taskID, labelIDs)
}
