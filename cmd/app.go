package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"fidera/internal/config"
	"fidera/internal/metadata"
	"fidera/internal/repository"
	"fidera/internal/service"
	"fidera/internal/service/storage"
)

// app хранит собранные зависимости процесса
type app struct {
	db      *sqlx.DB
	repo    *repository.FileRepository
	storage *storage.Manager
	files   *service.FileService
	expiry  *service.ExpiryService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := repository.Connect(cfg.Database, 5, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := repository.RunMigrations(cfg.Database); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	tools := metadata.ToolsFromConfig(cfg.Metadata)
	repo := repository.NewFileRepository(db)
	indexer := service.NewIndexer(cfg.Indexer.WebhookURL, cfg.Indexer.Timeout)

	files, err := service.NewFileService(
		repo,
		store,
		metadata.NewEngine(tools),
		metadata.NewSanitizer(tools),
		indexer,
		service.FileServiceConfig{
			ScratchDir:         cfg.Server.ScratchDir,
			DefaultExpiryHours: cfg.Retention.DefaultExpiryHours,
			MaxExpiryHours:     cfg.Retention.MaxExpiryHours,
			CacheSize:          cfg.Cache.Size,
			CacheTTL:           cfg.Cache.TTL,
		},
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	expiry := service.NewExpiryService(repo, store, indexer, cfg.Retention.SweepInterval, cfg.Retention.SweepBatchSize)

	log.Info().
		Str("db_driver", cfg.Database.Driver).
		Str("storage_backend", store.BackendName()).
		Bool("exiftool", tools.Exiftool != "").
		Msg("application initialized")

	return &app{
		db:      db,
		repo:    repo,
		storage: store,
		files:   files,
		expiry:  expiry,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database connection")
	}
}
