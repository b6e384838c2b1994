package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/family-shield/internal/config"
)

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	location, err := time.LoadLocation(cfg.ScheduleTimezone)
	if err != nil {
		slog.Warn("Invalid timezone, using UTC", "timezone", cfg.ScheduleTimezone, "error", err)
		location = time.UTC
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: location,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	detectorEntry, err := scheduler.Register(cfg.InactivitySchedule, NewInactivityCheckTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register inactivity schedule: %w", err)
	}

	expiryEntry, err := scheduler.Register(cfg.TokenExpirySchedule, NewExpireTokensTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register token expiry schedule: %w", err)
	}

	// Start scheduler (non-blocking)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info(
		"Scheduler started",
		"inactivity_schedule", cfg.InactivitySchedule,
		"token_expiry_schedule", cfg.TokenExpirySchedule,
		"timezone", location.String(),
		"detector_entry_id", detectorEntry,
		"expiry_entry_id", expiryEntry,
	)

	return func() { scheduler.Shutdown() }, nil
}
