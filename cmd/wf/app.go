package main

import (
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/weekfold/weekfold/internal/config"
	"github.com/weekfold/weekfold/internal/remote"
	"github.com/weekfold/weekfold/internal/rollover"
	"github.com/weekfold/weekfold/internal/series"
	"github.com/weekfold/weekfold/internal/storage/local"
	"github.com/weekfold/weekfold/internal/sync"
	"github.com/weekfold/weekfold/internal/template"
)

// app bundles the wired engine for one CLI invocation.
type app struct {
	cfg    *config.Config
	store  *local.Store
	client *remote.Client
	orch   *sync.Orchestrator
	merger *sync.RowMerger
	roll   *rollover.Service
	logger *log.Logger
}

// buildApp opens the local store, connects the remote client, and wires the
// orchestrator with its services.
func buildApp(cfg *config.Config, logger *log.Logger) (*app, error) {
	store, err := local.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	client, err := remote.New(cfg.RemoteURL, cfg.APIToken, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	backends := sync.Backends{
		Tasks:       store.Tasks,
		TasksRemote: client.Tasks(),

		Labels:       store.Labels,
		LabelsRemote: client.Labels(),

		TaskLabels:       store.TaskLabels,
		TaskLabelsRemote: client.TaskLabels(),

		Recurrences:       store.Recurrences,
		RecurrencesRemote: client.Recurrences(),

		Templates:       store.Templates,
		TemplatesRemote: client.Templates(),

		Series:       store.Series,
		SeriesRemote: client.Series(),

		WorkingLog:       store.WorkingLog,
		WorkingLogRemote: client.WorkingLog(),

		Checkpoints: store.Checkpoints,
	}

	roll := rollover.New(store.Tasks, rollover.NewFileMarkerStore(cfg.RolloverMarkerPath), cfg.Location(), logger)
	gen := series.NewGenerator(store.Series, store.Templates, store.Tasks, store.TaskLabels, logger)
	catch := series.NewCatchUp(store.Recurrences, store.Tasks, logger)

	services := sync.Services{
		Rollover:  roll,
		Series:    gen,
		CatchUp:   catch,
		Templates: template.New(store.Tasks, store.TaskLabels, logger),
	}
	opts := sync.Options{
		RoutinesEnabled: cfg.RoutinesEnabled,
		RolloverEnabled: cfg.RolloverEnabled,
	}

	return &app{
		cfg:    cfg,
		store:  store,
		client: client,
		orch:   sync.New(backends, services, opts, logger),
		merger: sync.NewRowMerger(backends, logger),
		roll:   roll,
		logger: logger,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// newLogger builds the process logger. When a log file is configured the
// output rotates; otherwise everything goes to stderr.
func newLogger(cfg *config.Config, prefix string) *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, prefix, log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, prefix, log.LstdFlags)
}
