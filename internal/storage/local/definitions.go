package local

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weekfold/weekfold/internal/model"
)

// TemplateRepo is the template repository. Templates are pull-only: they
// are edited on the backend (or another device) and refreshed here, so
// NeedingSync is always empty.
type TemplateRepo struct {
	db *gorm.DB
}

// NeedingSync implements the LocalStore contract for a pull-only collection.
func (r *TemplateRepo) NeedingSync(ctx context.Context, userID string) ([]model.Template, error) {
	return nil, nil
}

// Count returns the number of stored templates for the user.
func (r *TemplateRepo) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Template{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Get fetches one template by id.
func (r *TemplateRepo) Get(ctx context.Context, id string) (model.Template, bool, error) {
	var tpl model.Template
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tpl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Template{}, false, nil
	}
	if err != nil {
		return model.Template{}, false, err
	}
	return tpl, true, nil
}

// ByID fetches one template as a pointer, for the series generator.
func (r *TemplateRepo) ByID(ctx context.Context, id string) (*model.Template, bool, error) {
	tpl, found, err := r.Get(ctx, id)
	if !found || err != nil {
		return nil, found, err
	}
	return &tpl, true, nil
}

// ApplyServer upserts the server copy of a template.
func (r *TemplateRepo) ApplyServer(ctx context.Context, rec model.Template) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Tombstone soft-deletes a template.
func (r *TemplateRepo) Tombstone(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Template{}).
		Where("id = ?", id).
		Update("deleted_at", at).Error
}

// SeriesRepo is the series repository. Pull-only, like templates.
type SeriesRepo struct {
	db *gorm.DB
}

// NeedingSync implements the LocalStore contract for a pull-only collection.
func (r *SeriesRepo) NeedingSync(ctx context.Context, userID string) ([]model.Series, error) {
	return nil, nil
}

// Count returns the number of stored series for the user.
func (r *SeriesRepo) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Series{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Get fetches one series by id.
func (r *SeriesRepo) Get(ctx context.Context, id string) (model.Series, bool, error) {
	var sr model.Series
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Series{}, false, nil
	}
	if err != nil {
		return model.Series{}, false, err
	}
	return sr, true, nil
}

// ApplyServer upserts the server copy of a series.
func (r *SeriesRepo) ApplyServer(ctx context.Context, rec model.Series) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Tombstone soft-deletes a series.
func (r *SeriesRepo) Tombstone(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Series{}).
		Where("id = ?", id).
		Update("deleted_at", at).Error
}

// ActiveSeries returns the user's active, non-deleted series, for the
// generator.
func (r *SeriesRepo) ActiveSeries(ctx context.Context, userID string) ([]model.Series, error) {
	var out []model.Series
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND deleted_at IS NULL", userID, model.SeriesActive).
		Find(&out).Error
	return out, err
}

// RecurrenceRepo is the task-based recurrence repository. Pull-only from
// the backend; generation bookkeeping is maintained locally by catch-up.
type RecurrenceRepo struct {
	db *gorm.DB
}

// NeedingSync implements the LocalStore contract for a pull-only collection.
func (r *RecurrenceRepo) NeedingSync(ctx context.Context, userID string) ([]model.Recurrence, error) {
	return nil, nil
}

// Count returns the number of stored recurrences for the user.
func (r *RecurrenceRepo) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Recurrence{}).
		Where("user_id = ?", userID).Count(&n).Error
	return n, err
}

// Get fetches one recurrence by id.
func (r *RecurrenceRepo) Get(ctx context.Context, id string) (model.Recurrence, bool, error) {
	var rec model.Recurrence
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Recurrence{}, false, nil
	}
	if err != nil {
		return model.Recurrence{}, false, err
	}
	return rec, true, nil
}

// ApplyServer upserts the server copy of a recurrence.
func (r *RecurrenceRepo) ApplyServer(ctx context.Context, rec model.Recurrence) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&rec).Error
}

// Tombstone soft-deletes a recurrence.
func (r *RecurrenceRepo) Tombstone(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Recurrence{}).
		Where("id = ?", id).
		Update("deleted_at", at).Error
}

// Due returns active recurrences whose next occurrence is at or before
// asOf, for catch-up.
func (r *RecurrenceRepo) Due(ctx context.Context, userID string, asOf time.Time) ([]model.Recurrence, error) {
	var out []model.Recurrence
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND deleted_at IS NULL AND next_scheduled_at IS NOT NULL AND next_scheduled_at <= ?",
			userID, model.RecurrenceActive, asOf).
		Find(&out).Error
	return out, err
}

// Save updates a recurrence's generation bookkeeping in place.
func (r *RecurrenceRepo) Save(ctx context.Context, rec *model.Recurrence) error {
	return r.db.WithContext(ctx).Model(&model.Recurrence{}).
		Where("id = ?", rec.ID).
		Updates(map[string]any{
			"last_generated_at": rec.LastGeneratedAt,
			"next_scheduled_at": rec.NextScheduledAt,
		}).Error
}
