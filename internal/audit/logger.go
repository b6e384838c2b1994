// Package audit records emergency access and shield lifecycle events.
// Writes are best-effort: a failure is logged and counted but never
// replaces the result of the operation being audited.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jimdaga/family-shield/internal/metrics"
	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/streams"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Outcome values written to access log metadata.
const (
	OutcomeGranted                 = "granted"
	OutcomeInvalidOrExpired        = "invalid_or_expired"
	OutcomeVerificationRequired    = "verification_required"
	OutcomeInvalidVerificationCode = "invalid_verification_code"
	OutcomeNotFound                = "not_found"
	OutcomeForbidden               = "forbidden"
	OutcomeError                   = "error"
)

// RequestInfo identifies the client behind an access attempt.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

// Entry is one access attempt. Empty IDs are stored as NULL.
type Entry struct {
	TokenID    string
	UserID     string
	GuardianID string
	AccessType string
	Outcome    string
	Request    RequestInfo
	Metadata   map[string]interface{}
}

// EventPublisher fans audit events out to external consumers.
type EventPublisher interface {
	PublishShieldEvent(ctx context.Context, event streams.ShieldEvent) (string, error)
}

// Logger appends audit rows.
type Logger struct {
	db        *gorm.DB
	publisher EventPublisher
	logger    *slog.Logger
}

// NewLogger creates an audit logger. publisher may be nil.
func NewLogger(db *gorm.DB, publisher EventPublisher, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{db: db, publisher: publisher, logger: logger}
}

// RecordAccess appends one emergency_access_logs row.
func (l *Logger) RecordAccess(ctx context.Context, e Entry) {
	metadata := make(map[string]interface{}, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	metadata["outcome"] = e.Outcome

	metrics.AccessDecisions.WithLabelValues(e.AccessType, e.Outcome).Inc()

	raw, err := json.Marshal(metadata)
	if err != nil {
		l.fail("marshal access log metadata", err, e)
		raw = []byte(`{}`)
	}

	row := models.EmergencyAccessLog{
		TokenID:    nullable(e.TokenID),
		UserID:     nullable(e.UserID),
		GuardianID: nullable(e.GuardianID),
		AccessType: e.AccessType,
		IPAddress:  e.Request.IPAddress,
		UserAgent:  e.Request.UserAgent,
		Metadata:   datatypes.JSON(raw),
	}
	if err := l.db.WithContext(ctx).Create(&row).Error; err != nil {
		l.fail("write access log", err, e)
		return
	}

	l.publish(ctx, streams.ShieldEvent{
		EventID:    row.ID,
		Kind:       e.AccessType,
		UserID:     e.UserID,
		GuardianID: e.GuardianID,
		TokenID:    e.TokenID,
		Outcome:    e.Outcome,
		OccurredAt: row.CreatedAt,
	})
}

// RecordActivation appends one emergency_activation_logs row outside any
// transaction. Lifecycle transitions write theirs inside the transition
// transaction via WriteActivation instead.
func (l *Logger) RecordActivation(ctx context.Context, userID, guardianID, activationType, notes string) {
	row, err := WriteActivation(l.db.WithContext(ctx), userID, guardianID, activationType, notes)
	if err != nil {
		metrics.AuditWriteFailures.Inc()
		l.logger.Error("Failed to write activation log",
			"user_id", userID,
			"activation_type", activationType,
			"error", err,
		)
		return
	}
	l.PublishActivation(ctx, row)
}

// PublishActivation fans an already-persisted activation row out.
func (l *Logger) PublishActivation(ctx context.Context, row *models.EmergencyActivationLog) {
	guardianID := ""
	if row.GuardianID != nil {
		guardianID = *row.GuardianID
	}
	l.publish(ctx, streams.ShieldEvent{
		EventID:    row.ID,
		Kind:       row.ActivationType,
		UserID:     row.UserID,
		GuardianID: guardianID,
		Note:       row.Notes,
		OccurredAt: row.CreatedAt,
	})
}

// WriteActivation inserts an activation row using tx.
func WriteActivation(tx *gorm.DB, userID, guardianID, activationType, notes string) (*models.EmergencyActivationLog, error) {
	row := models.EmergencyActivationLog{
		UserID:         userID,
		GuardianID:     nullable(guardianID),
		ActivationType: activationType,
		Notes:          notes,
	}
	if err := tx.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (l *Logger) publish(ctx context.Context, event streams.ShieldEvent) {
	if l.publisher == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if _, err := l.publisher.PublishShieldEvent(ctx, event); err != nil {
		l.logger.Warn("Failed to publish shield event", "kind", event.Kind, "event_id", event.EventID, "error", err)
	}
}

func (l *Logger) fail(msg string, err error, e Entry) {
	metrics.AuditWriteFailures.Inc()
	l.logger.Error("Audit "+msg+" failed",
		"access_type", e.AccessType,
		"outcome", e.Outcome,
		"token_id", e.TokenID,
		"user_id", e.UserID,
		"error", err,
	)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
