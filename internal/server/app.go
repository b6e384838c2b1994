// Package server assembles the Family Shield services and HTTP router.
package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jimdaga/family-shield/internal/audit"
	"github.com/jimdaga/family-shield/internal/config"
	"github.com/jimdaga/family-shield/internal/emergency"
	"github.com/jimdaga/family-shield/internal/shield"
	"github.com/jimdaga/family-shield/internal/storage"
	"github.com/jimdaga/family-shield/internal/streams"
	"github.com/jimdaga/family-shield/internal/webhook"
	"github.com/jimdaga/family-shield/internal/worker"
	"gorm.io/gorm"
)

// App holds every domain service, built once per process.
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Logger     *slog.Logger
	Audit      *audit.Logger
	Lifecycle  *shield.Lifecycle
	Detector   *shield.Detector
	Notifier   *shield.GuardianNotifier
	Tokens     *emergency.TokenService
	Disclosure *emergency.Disclosure

	closers []func() error
}

// Options selects optional collaborators. Nil fields fall back to the
// configured defaults.
type Options struct {
	Signer    storage.Signer
	Publisher audit.EventPublisher
	Scheduler shield.GuardianNotificationScheduler
}

// NewApp wires the services for cfg.
func NewApp(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *slog.Logger, opts Options) (*App, error) {
	app := &App{Config: cfg, DB: db, Logger: logger}

	if opts.Publisher == nil && cfg.RedisURL != "" {
		publisher, err := streams.NewPublisher(cfg.RedisURL)
		if err != nil {
			logger.Warn("Shield event stream disabled", "error", err)
		} else {
			opts.Publisher = publisher
			app.closers = append(app.closers, publisher.Close)
		}
	}

	if opts.Signer == nil {
		signer, err := newSigner(ctx, cfg)
		if err != nil {
			app.Close()
			return nil, err
		}
		opts.Signer = signer
		if gcs, ok := signer.(*storage.GCSSigner); ok {
			app.closers = append(app.closers, gcs.Close)
		}
	}

	if opts.Scheduler == nil && cfg.RedisURL != "" {
		if err := worker.InitClient(cfg.RedisURL); err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to init task client: %w", err)
		}
		app.closers = append(app.closers, worker.CloseClient)
		opts.Scheduler = worker.GuardianScheduler{Delay: cfg.GuardianNotifyDelay}
	}

	mailer := webhook.NewClient(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookStubMode)

	app.Audit = audit.NewLogger(db, opts.Publisher, logger)
	app.Lifecycle = shield.NewLifecycle(db, app.Audit, logger)
	app.Tokens = emergency.NewTokenService(db, app.Audit, app.Lifecycle, emergency.TokenOptions{
		TTL:                     cfg.TokenTTL,
		RequireVerification:     cfg.RequireVerification,
		MaxVerificationAttempts: cfg.MaxVerifyAttempts,
	}, logger)
	app.Disclosure = emergency.NewDisclosure(db, app.Audit, opts.Signer, cfg.StorageBucket, cfg.SignedURLTTL, logger)
	app.Detector = shield.NewDetector(db, app.Lifecycle, mailer, opts.Scheduler, shield.DetectorOptions{
		AppBaseURL:      cfg.AppBaseURL,
		CheckInTokenTTL: cfg.CheckInTokenTTL,
	}, logger)
	app.Notifier = shield.NewGuardianNotifier(db, app.Lifecycle, app.Tokens, mailer, cfg.AppBaseURL, logger)

	return app, nil
}

// WorkerServices exposes the task handlers' dependencies.
func (a *App) WorkerServices() worker.Services {
	return worker.Services{
		Detector: a.Detector,
		Notifier: a.Notifier,
		Tokens:   a.Tokens,
	}
}

// Close releases clients opened by NewApp, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Failed to close client", "error", err)
		}
	}
	a.closers = nil
}

func newSigner(ctx context.Context, cfg *config.Config) (storage.Signer, error) {
	if cfg.StorageStubMode {
		return storage.StubSigner{BaseURL: cfg.AppBaseURL}, nil
	}
	signer, err := storage.NewGCSSigner(ctx, cfg.StorageBucket, cfg.StorageCredentials, cfg.StorageTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage signer: %w", err)
	}
	return signer, nil
}
