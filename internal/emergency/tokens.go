package emergency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jimdaga/family-shield/internal/audit"
	"github.com/jimdaga/family-shield/internal/crypto"
	"github.com/jimdaga/family-shield/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const verificationCodeDigits = 6

// ActivationRecorder is told about every successful guardian validation so
// the shield lifecycle can promote pending_verification to active.
type ActivationRecorder interface {
	RecordGuardianVerification(ctx context.Context, userID, guardianID string) error
}

// TokenOptions configures issuance.
type TokenOptions struct {
	TTL                     time.Duration
	RequireVerification     bool
	// MaxVerificationAttempts deactivates a token after this many wrong
	// verification codes. Zero disables the cap.
	MaxVerificationAttempts int
}

// IssuedToken is returned once at issuance. Token and VerificationCode are
// not recoverable afterwards.
type IssuedToken struct {
	ID               string
	UserID           string
	GuardianID       string
	Token            string
	VerificationCode string
	ExpiresAt        time.Time
	Permissions      models.GuardianPermissions
}

// Access is the result of a successful validation.
type Access struct {
	TokenID     string
	UserID      string
	GuardianID  string
	Permissions models.GuardianPermissions
	ExpiresAt   time.Time
}

// TokenService issues and validates emergency access tokens.
type TokenService struct {
	db         *gorm.DB
	audit      *audit.Logger
	activation ActivationRecorder
	opts       TokenOptions
	now        func() time.Time
	logger     *slog.Logger
}

// NewTokenService creates a TokenService. activation may be nil.
func NewTokenService(db *gorm.DB, auditLogger *audit.Logger, activation ActivationRecorder, opts TokenOptions, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{
		db:         db,
		audit:      auditLogger,
		activation: activation,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Issue creates a token for guardianID over userID's vault, snapshotting
// the guardian's current permissions.
func (s *TokenService) Issue(ctx context.Context, userID, guardianID string) (*IssuedToken, error) {
	if !validID(guardianID) {
		return nil, ErrNotFound
	}

	var guardian models.Guardian
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", guardianID, userID).First(&guardian).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load guardian: %v", ErrInternal, err)
	}

	token, err := crypto.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	var code string
	if s.opts.RequireVerification {
		code, err = crypto.NewNumericCode(verificationCodeDigits)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
	}

	row := models.EmergencyAccessToken{
		UserID:               userID,
		GuardianID:           guardian.ID,
		TokenHash:            crypto.HashToken(token),
		ExpiresAt:            s.now().Add(s.opts.TTL),
		IsActive:             true,
		RequiresVerification: s.opts.RequireVerification,
		VerificationCode:     code,
		Permissions:          datatypes.NewJSONType(guardian.Permissions),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("%w: failed to store token: %v", ErrInternal, err)
	}

	s.logger.Info("Emergency access token issued",
		"token_id", row.ID,
		"user_id", userID,
		"guardian_id", guardian.ID,
		"expires_at", row.ExpiresAt,
		"requires_verification", row.RequiresVerification,
	)

	return &IssuedToken{
		ID:               row.ID,
		UserID:           userID,
		GuardianID:       guardian.ID,
		Token:            token,
		VerificationCode: code,
		ExpiresAt:        row.ExpiresAt,
		Permissions:      guardian.Permissions,
	}, nil
}

// Validate checks a presented token and optional verification code. Every
// call appends exactly one token_verification audit row.
func (s *TokenService) Validate(ctx context.Context, token, code string, req audit.RequestInfo) (*Access, error) {
	entry := audit.Entry{
		AccessType: models.AccessTypeTokenVerification,
		Request:    req,
		Metadata: map[string]interface{}{
			"verification_provided": code != "",
			"verification_required": false,
		},
	}

	access, outcome, reason, err := s.validate(ctx, token, code, &entry)
	entry.Outcome = outcome
	if reason != "" {
		entry.Metadata["reason"] = reason
	}
	s.audit.RecordAccess(ctx, entry)

	if err != nil {
		return nil, err
	}

	s.markActivated(ctx, access)
	return access, nil
}

func (s *TokenService) validate(ctx context.Context, token, code string, entry *audit.Entry) (*Access, string, string, error) {
	if token == "" {
		return nil, audit.OutcomeInvalidOrExpired, "missing", ErrInvalidOrExpiredToken
	}

	var row models.EmergencyAccessToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", crypto.HashToken(token)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, audit.OutcomeInvalidOrExpired, "not_found", ErrInvalidOrExpiredToken
	}
	if err != nil {
		s.logger.Error("Token lookup failed", "error", err)
		return nil, audit.OutcomeError, "lookup_failed", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	entry.TokenID = row.ID
	entry.UserID = row.UserID
	entry.GuardianID = row.GuardianID
	entry.Metadata["verification_required"] = row.RequiresVerification

	now := s.now()
	if !now.Before(row.ExpiresAt) {
		return nil, audit.OutcomeInvalidOrExpired, "expired", ErrInvalidOrExpiredToken
	}
	if !row.IsActive {
		return nil, audit.OutcomeInvalidOrExpired, "inactive", ErrInvalidOrExpiredToken
	}

	if row.RequiresVerification {
		if code == "" {
			return nil, audit.OutcomeVerificationRequired, "", ErrVerificationRequired
		}
		if !crypto.EqualSecret(code, row.VerificationCode) {
			if s.recordFailedAttempt(ctx, row.ID) {
				return nil, audit.OutcomeInvalidVerificationCode, "attempts_exhausted", ErrInvalidVerificationCode
			}
			return nil, audit.OutcomeInvalidVerificationCode, "", ErrInvalidVerificationCode
		}
	}

	return &Access{
		TokenID:     row.ID,
		UserID:      row.UserID,
		GuardianID:  row.GuardianID,
		Permissions: row.Permissions.Data(),
		ExpiresAt:   row.ExpiresAt,
	}, audit.OutcomeGranted, "", nil
}

// recordFailedAttempt counts a wrong verification code and reports whether
// the token was deactivated because the attempt cap was reached.
func (s *TokenService) recordFailedAttempt(ctx context.Context, tokenID string) bool {
	err := s.db.WithContext(ctx).Model(&models.EmergencyAccessToken{}).
		Where("id = ?", tokenID).
		Update("failed_verification_attempts", gorm.Expr("failed_verification_attempts + 1")).Error
	if err != nil {
		s.logger.Error("Failed to count verification attempt", "token_id", tokenID, "error", err)
		return false
	}
	if s.opts.MaxVerificationAttempts <= 0 {
		return false
	}

	res := s.db.WithContext(ctx).Model(&models.EmergencyAccessToken{}).
		Where("id = ? AND is_active = ? AND failed_verification_attempts >= ?", tokenID, true, s.opts.MaxVerificationAttempts).
		Update("is_active", false)
	if res.Error != nil {
		s.logger.Error("Failed to lock token", "token_id", tokenID, "error", res.Error)
		return false
	}
	if res.RowsAffected == 0 {
		return false
	}

	s.logger.Warn("Emergency access token locked after repeated wrong verification codes",
		"token_id", tokenID,
		"max_attempts", s.opts.MaxVerificationAttempts,
	)
	return true
}

// markActivated stamps the token's first successful use and its latest
// verification, then reports the verification to the shield lifecycle.
// Failures are logged only.
func (s *TokenService) markActivated(ctx context.Context, access *Access) {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&models.EmergencyAccessToken{}).
		Where("id = ?", access.TokenID).
		Updates(map[string]interface{}{
			"activation_date":  gorm.Expr("COALESCE(activation_date, ?)", now),
			"last_verified_at": now,
		}).Error
	if err != nil {
		s.logger.Error("Failed to stamp token verification", "token_id", access.TokenID, "error", err)
	}

	if s.activation == nil {
		return
	}
	if err := s.activation.RecordGuardianVerification(ctx, access.UserID, access.GuardianID); err != nil {
		s.logger.Error("Failed to record guardian verification",
			"user_id", access.UserID,
			"guardian_id", access.GuardianID,
			"error", err,
		)
	}
}

// Revoke deactivates one of userID's tokens. Revoking an already inactive
// token is a no-op.
func (s *TokenService) Revoke(ctx context.Context, userID, tokenID string) error {
	if !validID(tokenID) {
		return ErrNotFound
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.EmergencyAccessToken{}).
		Where("id = ? AND user_id = ? AND is_active = ?", tokenID, userID, true).
		Updates(map[string]interface{}{"is_active": false, "revoked_at": now})
	if res.Error != nil {
		return fmt.Errorf("%w: failed to revoke token: %v", ErrInternal, res.Error)
	}
	if res.RowsAffected > 0 {
		s.logger.Info("Emergency access token revoked", "token_id", tokenID, "user_id", userID)
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.EmergencyAccessToken{}).
		Where("id = ? AND user_id = ?", tokenID, userID).Count(&count).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// Consume deactivates a token after a successful single-use download.
func (s *TokenService) Consume(ctx context.Context, tokenID string) error {
	err := s.db.WithContext(ctx).Model(&models.EmergencyAccessToken{}).
		Where("id = ? AND is_active = ?", tokenID, true).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("%w: failed to consume token: %v", ErrInternal, err)
	}
	return nil
}

// ExpireStale deactivates every active token whose expiry has passed and
// returns how many were changed.
func (s *TokenService) ExpireStale(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.EmergencyAccessToken{}).
		Where("is_active = ? AND expires_at <= ?", true, s.now()).
		Update("is_active", false)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// validID reports whether id can name a row. Ids are UUID columns, so
// anything else cannot match and is treated as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
