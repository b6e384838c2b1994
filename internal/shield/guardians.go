package shield

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jimdaga/family-shield/internal/emergency"
	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/webhook"
	"gorm.io/gorm"
)

// TokenIssuer issues emergency access tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, userID, guardianID string) (*emergency.IssuedToken, error)
}

// GuardianMailer delivers access links and verification codes to guardians.
type GuardianMailer interface {
	SendGuardianAccess(ctx context.Context, notice webhook.GuardianAccessNotice) error
	SendVerificationCode(ctx context.Context, notice webhook.VerificationCodeNotice) error
}

// GuardianNotifier contacts a user's guardians once the check-in grace
// period has passed without a check-in.
type GuardianNotifier struct {
	db         *gorm.DB
	lifecycle  *Lifecycle
	issuer     TokenIssuer
	mailer     GuardianMailer
	appBaseURL string
	logger     *slog.Logger
}

// NewGuardianNotifier creates a GuardianNotifier.
func NewGuardianNotifier(db *gorm.DB, lifecycle *Lifecycle, issuer TokenIssuer, mailer GuardianMailer, appBaseURL string, logger *slog.Logger) *GuardianNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardianNotifier{
		db:         db,
		lifecycle:  lifecycle,
		issuer:     issuer,
		mailer:     mailer,
		appBaseURL: appBaseURL,
		logger:     logger,
	}
}

// NotifyGuardians issues one token per guardian and mails it, provided the
// shield is still pending verification. Returns the number of guardians
// contacted. Per-guardian failures are logged and skipped.
func (n *GuardianNotifier) NotifyGuardians(ctx context.Context, userID string) (int, error) {
	settings, err := n.lifecycle.Settings(ctx, userID)
	if err != nil {
		return 0, err
	}
	if settings.ShieldStatus != models.ShieldStatusPendingVerification {
		n.logger.Info("Shield no longer pending, skipping guardian notification",
			"user_id", userID,
			"status", settings.ShieldStatus,
		)
		return 0, nil
	}

	var owner models.User
	if err := n.db.WithContext(ctx).First(&owner, "id = ?", userID).Error; err != nil {
		return 0, fmt.Errorf("failed to load owner: %w", err)
	}

	var guardians []models.Guardian
	if err := n.db.WithContext(ctx).Where("user_id = ?", userID).Find(&guardians).Error; err != nil {
		return 0, fmt.Errorf("failed to load guardians: %w", err)
	}

	notified := 0
	for i := range guardians {
		if err := n.notifyOne(ctx, &owner, &guardians[i]); err != nil {
			n.logger.Error("Failed to notify guardian",
				"user_id", userID,
				"guardian_id", guardians[i].ID,
				"error", err,
			)
			continue
		}
		notified++
	}

	n.lifecycle.audit.RecordActivation(ctx, userID, "", models.ActivationGuardiansNotified,
		fmt.Sprintf("Notified %d of %d guardians", notified, len(guardians)))
	return notified, nil
}

func (n *GuardianNotifier) notifyOne(ctx context.Context, owner *models.User, guardian *models.Guardian) error {
	issued, err := n.issuer.Issue(ctx, owner.ID, guardian.ID)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	err = n.mailer.SendGuardianAccess(ctx, webhook.GuardianAccessNotice{
		OwnerName:     owner.Name,
		GuardianName:  guardian.Name,
		GuardianEmail: guardian.Email,
		AccessURL:     n.appBaseURL + "/emergency-access?token=" + url.QueryEscape(issued.Token),
		ExpiresAt:     issued.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("send access link: %w", err)
	}

	if issued.VerificationCode == "" {
		return nil
	}
	err = n.mailer.SendVerificationCode(ctx, webhook.VerificationCodeNotice{
		GuardianName:     guardian.Name,
		GuardianEmail:    guardian.Email,
		VerificationCode: issued.VerificationCode,
	})
	if err != nil {
		return fmt.Errorf("send verification code: %w", err)
	}
	return nil
}
