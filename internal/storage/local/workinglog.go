package local

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weekfold/weekfold/internal/model"
)

// WorkingLogRepo is the working-log repository.
type WorkingLogRepo struct {
	db *gorm.DB
}

// NeedingSync returns the user's dirty, non-deleted log items.
func (r *WorkingLogRepo) NeedingSync(ctx context.Context, userID string) ([]model.WorkingLogItem, error) {
	var out []model.WorkingLogItem
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND needs_sync = ? AND deleted_at IS NULL", userID, true).
		Find(&out).Error
	return out, err
}

// Count returns the number of stored log items for the user.
func (r *WorkingLogRepo) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.WorkingLogItem{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Get fetches one log item by id.
func (r *WorkingLogRepo) Get(ctx context.Context, id string) (model.WorkingLogItem, bool, error) {
	var item model.WorkingLogItem
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WorkingLogItem{}, false, nil
	}
	if err != nil {
		return model.WorkingLogItem{}, false, err
	}
	return item, true, nil
}

// ApplyServer upserts the server copy of a log item and clears its dirty flag.
func (r *WorkingLogRepo) ApplyServer(ctx context.Context, rec model.WorkingLogItem) error {
	rec.NeedsSync = false
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Tombstone soft-deletes a log item without marking it dirty.
func (r *WorkingLogRepo) Tombstone(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.WorkingLogItem{}).
		Where("id = ?", id).
		Updates(map[string]any{"deleted_at": at, "needs_sync": false}).Error
}
