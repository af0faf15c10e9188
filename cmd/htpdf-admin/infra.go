package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/htpdf/htpdf/config"
	"github.com/htpdf/htpdf/internal/adapters/storage"
	"github.com/htpdf/htpdf/internal/bootstrap"
	"github.com/htpdf/htpdf/internal/data"
	"github.com/htpdf/htpdf/internal/domain/queue"
	"github.com/htpdf/htpdf/internal/service"
)

func connectDB(logger *slog.Logger, cfg *config.AppConfig) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	return db, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("db close failed", "error", err)
	}
}

// buildJobService wires a JobService for one-shot CLI commands. The queue is
// local to the process; a submitted job is persisted as pending and picked up
// by the worker's startup reconciliation, not by this process.
func buildJobService(db *sql.DB, cfg *config.AppConfig, logger *slog.Logger) (*service.JobService, error) {
	store, err := storage.NewLocalStore(storage.LocalStoreOptions{
		Config: cfg.Storage,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise file storage: %w", err)
	}

	return service.NewJobService(service.JobServiceOptions{
		Repo:      data.NewJobRepo(db, data.RepoConfig{Logger: logger}),
		Queue:     queue.New(),
		Storage:   store,
		Limits:    cfg.Limits,
		Retention: cfg.Storage,
		Logger:    logger,
	})
}
