package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Access log types
const (
	AccessTypeTokenVerification = "token_verification"
	AccessTypeDocumentDownload  = "document_download"
)

// Activation log types
const (
	ActivationInactivityDetected = "inactivity_detected"
	ActivationUserCheckIn        = "user_check_in"
	ActivationGuardianActivation = "guardian_activation"
	ActivationGuardiansNotified  = "guardians_notified"
	ActivationAdminReset         = "admin_reset"
)

// EmergencyAccessLog is one append-only audit row per verification or
// download attempt. Token, user and guardian are nil when the presented
// token matched nothing.
type EmergencyAccessLog struct {
	ID         string  `gorm:"type:uuid;primaryKey"`
	TokenID    *string `gorm:"type:uuid;index"`
	UserID     *string `gorm:"type:uuid;index"`
	GuardianID *string `gorm:"type:uuid"`
	AccessType string  `gorm:"not null;index"`
	IPAddress  string
	UserAgent  string
	Metadata   datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time      `gorm:"index"`
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (l *EmergencyAccessLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// EmergencyActivationLog records shield lifecycle transitions.
type EmergencyActivationLog struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	UserID         string  `gorm:"type:uuid;not null;index"`
	GuardianID     *string `gorm:"type:uuid"`
	ActivationType string  `gorm:"not null"`
	Notes          string  `gorm:"type:text"`
	CreatedAt      time.Time
}

// BeforeCreate assigns a UUID when the caller did not set one.
func (l *EmergencyActivationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// All lists every model for AutoMigrate in tests and development tooling.
func All() []interface{} {
	return []interface{}{
		&User{},
		&AuthIdentity{},
		&Guardian{},
		&ShieldSettings{},
		&CheckInToken{},
		&EmergencyAccessToken{},
		&Document{},
		&EmergencyAccessLog{},
		&EmergencyActivationLog{},
	}
}
