package shield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jimdaga/family-shield/internal/metrics"
	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/webhook"
	"gorm.io/gorm"
)

// inactivityMonth is the fixed month length used for inactivity math.
const inactivityMonth = 30 * 24 * time.Hour

const detectorBatchSize = 200

// CheckInNotifier sends the "are you still there" email.
type CheckInNotifier interface {
	SendCheckInReminder(ctx context.Context, reminder webhook.CheckInReminder) error
}

// GuardianNotificationScheduler arranges for guardians to be contacted
// after the check-in grace period.
type GuardianNotificationScheduler interface {
	ScheduleGuardianNotification(ctx context.Context, userID string) error
}

// DetectorOptions configures a Detector.
type DetectorOptions struct {
	AppBaseURL      string
	CheckInTokenTTL time.Duration
}

// Result summarizes a detector run.
type Result struct {
	Processed int `json:"processed"`
	Triggered int `json:"triggered"`
}

// Detector scans enabled, inactive shields and moves users who have been
// inactive past their threshold to pending_verification.
type Detector struct {
	db        *gorm.DB
	lifecycle *Lifecycle
	notifier  CheckInNotifier
	scheduler GuardianNotificationScheduler
	opts      DetectorOptions
	now       func() time.Time
	logger    *slog.Logger
}

// NewDetector creates a Detector. scheduler may be nil, in which case
// guardians are never contacted automatically.
func NewDetector(db *gorm.DB, lifecycle *Lifecycle, notifier CheckInNotifier, scheduler GuardianNotificationScheduler, opts DetectorOptions, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		db:        db,
		lifecycle: lifecycle,
		notifier:  notifier,
		scheduler: scheduler,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

// MonthsInactive returns whole 30-day months between last and now.
func MonthsInactive(last, now time.Time) int {
	elapsed := now.Sub(last)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / inactivityMonth)
}

// Run processes every enabled shield still in the inactive status. A failure
// on one user is logged and skipped; only a failure to query settings
// aborts the run.
func (d *Detector) Run(ctx context.Context) (Result, error) {
	var result Result
	now := d.now()

	var batch []models.ShieldSettings
	err := d.db.WithContext(ctx).
		Where("is_shield_enabled = ? AND shield_status = ?", true, models.ShieldStatusInactive).
		FindInBatches(&batch, detectorBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				result.Processed++
				triggered, err := d.processUser(ctx, &batch[i], now)
				if err != nil {
					metrics.DetectorUserFailures.Inc()
					d.logger.Error("Failed to process user for inactivity",
						"user_id", batch[i].UserID,
						"error", err,
					)
					continue
				}
				if triggered {
					result.Triggered++
				}
			}
			return nil
		}).Error
	if err != nil {
		return result, fmt.Errorf("failed to query shield settings: %w", err)
	}

	metrics.DetectorRuns.Inc()
	metrics.DetectorTriggered.Add(float64(result.Triggered))
	d.logger.Info("Inactivity check completed",
		"processed", result.Processed,
		"triggered", result.Triggered,
	)
	return result, nil
}

func (d *Detector) processUser(ctx context.Context, settings *models.ShieldSettings, now time.Time) (bool, error) {
	var user models.User
	err := d.db.WithContext(ctx).First(&user, "id = ?", settings.UserID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("identity record missing for user %s", settings.UserID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to load user: %w", err)
	}

	months := MonthsInactive(user.LastActivity(), now)
	if months < settings.InactivityPeriodMonths {
		err := d.db.WithContext(ctx).Model(&models.ShieldSettings{}).
			Where("id = ?", settings.ID).
			Update("last_activity_check", now).Error
		if err != nil {
			return false, fmt.Errorf("failed to update last activity check: %w", err)
		}
		return false, nil
	}

	err = d.lifecycle.Apply(ctx, Transition{
		UserID:         user.ID,
		From:           models.ShieldStatusInactive,
		To:             models.ShieldStatusPendingVerification,
		ActivationType: models.ActivationInactivityDetected,
		Notes: fmt.Sprintf("User inactive for %d months (threshold: %d months)",
			months, settings.InactivityPeriodMonths),
	})
	if errors.Is(err, ErrStatusConflict) {
		// A concurrent run or a check-in already moved this shield.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	d.sendCheckIn(ctx, &user, months, settings.InactivityPeriodMonths)

	if d.scheduler != nil {
		if err := d.scheduler.ScheduleGuardianNotification(ctx, user.ID); err != nil {
			d.logger.Error("Failed to schedule guardian notification", "user_id", user.ID, "error", err)
		}
	}
	return true, nil
}

// sendCheckIn dispatches the check-in email. The transition is already
// committed, so failures here are logged and do not undo it.
func (d *Detector) sendCheckIn(ctx context.Context, user *models.User, months, threshold int) {
	token, err := d.lifecycle.IssueCheckInToken(ctx, user.ID, d.opts.CheckInTokenTTL)
	if err != nil {
		d.logger.Error("Failed to issue check-in token", "user_id", user.ID, "error", err)
		return
	}

	reminder := webhook.CheckInReminder{
		UserID:          user.ID,
		Email:           user.Email,
		Name:            user.Name,
		CheckInURL:      d.opts.AppBaseURL + "/check-in?token=" + url.QueryEscape(token),
		MonthsInactive:  months,
		ThresholdMonths: threshold,
	}
	if err := d.notifier.SendCheckInReminder(ctx, reminder); err != nil {
		d.logger.Error("Failed to send check-in reminder", "user_id", user.ID, "error", err)
	}
}
