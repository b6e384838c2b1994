package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/family-shield/internal/config"
	"github.com/jimdaga/family-shield/internal/shield"
)

// InactivityDetector runs one detector pass.
type InactivityDetector interface {
	Run(ctx context.Context) (shield.Result, error)
}

// GuardianNotifier contacts a user's guardians.
type GuardianNotifier interface {
	NotifyGuardians(ctx context.Context, userID string) (int, error)
}

// TokenExpirer deactivates expired emergency tokens.
type TokenExpirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// Services are the domain operations the worker executes.
type Services struct {
	Detector InactivityDetector
	Notifier GuardianNotifier
	Tokens   TokenExpirer
}

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, svc Services) error {
	srv, mux, err := newServer(cfg, svc)
	if err != nil {
		return err
	}
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, svc Services) (stop func(), err error) {
	srv, mux, err := newServer(cfg, svc)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, svc Services) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	logger.Info("Worker starting", "concurrency", 5)
	return srv, NewServeMux(logger, svc), nil
}

// NewServeMux registers a handler for every task type.
func NewServeMux(logger *slog.Logger, svc Services) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskInactivityCheck, handleInactivityCheck(logger, svc.Detector))
	mux.HandleFunc(TaskNotifyGuardians, handleNotifyGuardians(logger, svc.Notifier))
	mux.HandleFunc(TaskExpireTokens, handleExpireTokens(logger, svc.Tokens))
	return mux
}

// handleInactivityCheck runs the detector. Per-user failures are absorbed by
// the detector itself, so an error here means the scan could not run.
func handleInactivityCheck(logger *slog.Logger, detector InactivityDetector) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		logger.Info("Processing shield:inactivity_check task")

		result, err := detector.Run(ctx)
		if err != nil {
			return fmt.Errorf("inactivity check failed: %w", err)
		}

		logger.Info(
			"Inactivity check task completed",
			"processed", result.Processed,
			"triggered", result.Triggered,
		)
		return nil
	}
}

// handleNotifyGuardians contacts the guardians of a user whose check-in
// grace period ran out.
func handleNotifyGuardians(logger *slog.Logger, notifier GuardianNotifier) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload notifyGuardiansPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.UserID == "" {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info("Processing shield:notify_guardians task", "user_id", payload.UserID)

		notified, err := notifier.NotifyGuardians(ctx, payload.UserID)
		if errors.Is(err, shield.ErrSettingsNotFound) {
			logger.Error("Shield settings not found", "user_id", payload.UserID)
			return fmt.Errorf("shield settings not found: %w", asynq.SkipRetry)
		}
		if err != nil {
			return fmt.Errorf("guardian notification failed: %w", err)
		}

		logger.Info("Guardian notification completed", "user_id", payload.UserID, "notified", notified)
		return nil
	}
}

func handleExpireTokens(logger *slog.Logger, tokens TokenExpirer) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		n, err := tokens.ExpireStale(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("Expired emergency access tokens", "count", n)
		}
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Check if this is the final failure (task will move to dead letter queue)
		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
