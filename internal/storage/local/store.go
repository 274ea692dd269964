// Package local implements the engine's local repository contracts on an
// embedded SQLite database managed through GORM.
//
// This is the reference local store: the sync engine itself only depends on
// the interfaces in internal/sync, so hosts with their own persistence can
// swap this package out entirely.
package local

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/weekfold/weekfold/internal/model"
)

// Store owns the database handle and the per-entity repositories.
type Store struct {
	db *gorm.DB

	Tasks       *TaskRepo
	Labels      *LabelRepo
	TaskLabels  *TaskLabelRepo
	Templates   *TemplateRepo
	Series      *SeriesRepo
	Recurrences *RecurrenceRepo
	WorkingLog  *WorkingLogRepo
	Checkpoints *CheckpointRepo
}

// Open creates or opens the database at path and migrates the schema.
// WAL mode keeps readers unblocked while a sync phase writes.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Task{},
		&model.Label{},
		&model.TaskLabel{},
		&model.Template{},
		&model.Series{},
		&model.Recurrence{},
		&model.WorkingLogItem{},
		&model.SyncCheckpoint{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{
		db:          db,
		Tasks:       &TaskRepo{db: db},
		Labels:      &LabelRepo{db: db},
		TaskLabels:  &TaskLabelRepo{db: db},
		Templates:   &TemplateRepo{db: db},
		Series:      &SeriesRepo{db: db},
		Recurrences: &RecurrenceRepo{db: db},
		WorkingLog:  &WorkingLogRepo{db: db},
		Checkpoints: &CheckpointRepo{db: db},
	}, nil
}

// DB exposes the underlying handle for host-level queries.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
