// Package shield owns the Family Shield lifecycle: settings, the
// inactivity detector, user check-ins, guardian activation and
// administrative reset.
package shield

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/family-shield/internal/audit"
	"github.com/jimdaga/family-shield/internal/crypto"
	"github.com/jimdaga/family-shield/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrStatusConflict means the shield was not in the expected status when
	// a transition was attempted; another writer got there first.
	ErrStatusConflict = errors.New("shield status changed concurrently")
	// ErrSettingsNotFound means the user has no shield settings row.
	ErrSettingsNotFound = errors.New("shield settings not found")
	// ErrInvalidCheckInToken covers unknown, consumed and expired check-in tokens.
	ErrInvalidCheckInToken = errors.New("invalid or expired check-in token")
)

// Transition describes one conditional status change.
type Transition struct {
	UserID         string
	From           string
	To             string
	ActivationType string
	GuardianID     string
	Notes          string
}

// Lifecycle performs shield status transitions. Every transition is a
// compare-and-swap on shield_status plus an activation log row, committed
// together.
type Lifecycle struct {
	db     *gorm.DB
	audit  *audit.Logger
	now    func() time.Time
	logger *slog.Logger
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(db *gorm.DB, auditLogger *audit.Logger, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		db:     db,
		audit:  auditLogger,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Apply executes t. It returns ErrStatusConflict when the row was not in
// t.From.
func (l *Lifecycle) Apply(ctx context.Context, t Transition) error {
	now := l.now()
	var logRow *models.EmergencyActivationLog

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ShieldSettings{}).
			Where("user_id = ? AND shield_status = ?", t.UserID, t.From).
			Updates(map[string]interface{}{
				"shield_status":       t.To,
				"status_changed_at":   now,
				"last_activity_check": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStatusConflict
		}

		row, err := audit.WriteActivation(tx, t.UserID, t.GuardianID, t.ActivationType, t.Notes)
		if err != nil {
			return fmt.Errorf("failed to write activation log: %w", err)
		}
		logRow = row
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("Shield status changed",
		"user_id", t.UserID,
		"from", t.From,
		"to", t.To,
		"activation_type", t.ActivationType,
	)
	l.audit.PublishActivation(ctx, logRow)
	return nil
}

// Settings loads userID's shield settings.
func (l *Lifecycle) Settings(ctx context.Context, userID string) (*models.ShieldSettings, error) {
	var s models.ShieldSettings
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CheckIn records that the owner is alive and well. A pending shield goes
// back to inactive; an active shield stays active and needs an
// administrative reset. Returns the resulting status.
func (l *Lifecycle) CheckIn(ctx context.Context, userID string) (string, error) {
	now := l.now()
	if err := l.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("last_sign_in_at", now).Error; err != nil {
		return "", fmt.Errorf("failed to record check-in activity: %w", err)
	}

	settings, err := l.Settings(ctx, userID)
	if err != nil {
		return "", err
	}

	if settings.ShieldStatus != models.ShieldStatusPendingVerification {
		return settings.ShieldStatus, nil
	}

	err = l.Apply(ctx, Transition{
		UserID:         userID,
		From:           models.ShieldStatusPendingVerification,
		To:             models.ShieldStatusInactive,
		ActivationType: models.ActivationUserCheckIn,
		Notes:          "User checked in; emergency verification cancelled",
	})
	if errors.Is(err, ErrStatusConflict) {
		// Lost a race with guardian activation or a concurrent check-in.
		current, lerr := l.Settings(ctx, userID)
		if lerr != nil {
			return "", lerr
		}
		return current.ShieldStatus, nil
	}
	if err != nil {
		return "", err
	}
	return models.ShieldStatusInactive, nil
}

// IssueCheckInToken creates a single-use check-in secret for userID.
func (l *Lifecycle) IssueCheckInToken(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token, err := crypto.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	row := models.CheckInToken{
		UserID:    userID,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: l.now().Add(ttl),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to store check-in token: %w", err)
	}
	return token, nil
}

// CheckInWithToken consumes a check-in token and checks its owner in.
func (l *Lifecycle) CheckInWithToken(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidCheckInToken
	}

	var row models.CheckInToken
	err := l.db.WithContext(ctx).Where("token_hash = ?", crypto.HashToken(token)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrInvalidCheckInToken
	}
	if err != nil {
		return "", err
	}

	now := l.now()
	if !now.Before(row.ExpiresAt) {
		return "", ErrInvalidCheckInToken
	}

	res := l.db.WithContext(ctx).Model(&models.CheckInToken{}).
		Where("id = ? AND consumed_at IS NULL", row.ID).
		Update("consumed_at", now)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrInvalidCheckInToken
	}

	return l.CheckIn(ctx, row.UserID)
}

// RecordGuardianVerification promotes a pending shield to active once the
// configured number of distinct guardians have validated a token during the
// current pending episode.
func (l *Lifecycle) RecordGuardianVerification(ctx context.Context, userID, guardianID string) error {
	settings, err := l.Settings(ctx, userID)
	if errors.Is(err, ErrSettingsNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if settings.ShieldStatus != models.ShieldStatusPendingVerification || settings.StatusChangedAt == nil {
		return nil
	}

	var verified int64
	err = l.db.WithContext(ctx).Model(&models.EmergencyAccessToken{}).
		Where("user_id = ? AND last_verified_at IS NOT NULL AND last_verified_at >= ?", userID, *settings.StatusChangedAt).
		Distinct("guardian_id").
		Count(&verified).Error
	if err != nil {
		return fmt.Errorf("failed to count verified guardians: %w", err)
	}

	required := settings.RequiredGuardiansForActivation
	if required < 1 {
		required = 1
	}
	if verified < int64(required) {
		l.logger.Info("Guardian verified, awaiting more guardians",
			"user_id", userID,
			"verified", verified,
			"required", required,
		)
		return nil
	}

	err = l.Apply(ctx, Transition{
		UserID:         userID,
		From:           models.ShieldStatusPendingVerification,
		To:             models.ShieldStatusActive,
		ActivationType: models.ActivationGuardianActivation,
		GuardianID:     guardianID,
		Notes:          fmt.Sprintf("Shield activated after %d of %d required guardians verified", verified, required),
	})
	if errors.Is(err, ErrStatusConflict) {
		return nil
	}
	return err
}

// AdminReset returns an active shield to inactive.
func (l *Lifecycle) AdminReset(ctx context.Context, userID, actorID string) error {
	return l.Apply(ctx, Transition{
		UserID:         userID,
		From:           models.ShieldStatusActive,
		To:             models.ShieldStatusInactive,
		ActivationType: models.ActivationAdminReset,
		Notes:          fmt.Sprintf("Reset by administrator %s", actorID),
	})
}
