package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jimdaga/family-shield/internal/config"
	"github.com/jimdaga/family-shield/internal/database"
	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/server"
	"github.com/jimdaga/family-shield/internal/worker"
	"gorm.io/gorm"
)

// deps is the process-wide state every subcommand starts from.
type deps struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
}

func bootstrap() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if cfg.EncryptionKey != "" {
		if err := models.InitEncryption(cfg.EncryptionKey); err != nil {
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
	}

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	return &deps{cfg: cfg, logger: logger, db: db}, nil
}

func (r *deps) app(ctx context.Context) (*server.App, error) {
	return server.NewApp(ctx, r.cfg, r.db, r.logger, server.Options{})
}

func (r *deps) close() {
	if err := database.Close(r.db); err != nil {
		r.logger.Warn("Failed to close database", "error", err)
	}
}
