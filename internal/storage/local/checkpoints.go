package local

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weekfold/weekfold/internal/model"
)

// CheckpointRepo persists the per-user, per-collection pull watermarks.
type CheckpointRepo struct {
	db *gorm.DB
}

// LoadSnapshot returns all of the user's watermarks. Collections that were
// never pulled are absent.
func (r *CheckpointRepo) LoadSnapshot(ctx context.Context, userID string) (model.CheckpointSnapshot, error) {
	var rows []model.SyncCheckpoint
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	snap := model.CheckpointSnapshot{}
	for _, row := range rows {
		snap[row.Collection] = row.LastAppliedAt
	}
	return snap, nil
}

// UpdateCheckpoint upserts one collection's watermark.
func (r *CheckpointRepo) UpdateCheckpoint(ctx context.Context, userID string, col model.Collection, ts time.Time) error {
	row := model.SyncCheckpoint{
		UserID:        userID,
		Collection:    col,
		LastAppliedAt: ts,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// Reset drops all of the user's watermarks, forcing a cold pull on the next
// cycle.
func (r *CheckpointRepo) Reset(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.SyncCheckpoint{}).Error
}
