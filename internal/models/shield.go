package models

import "time"

// Shield status constants
const (
	ShieldStatusInactive            = "inactive"
	ShieldStatusPendingVerification = "pending_verification"
	ShieldStatusActive              = "active"
)

// ShieldSettings is the per-user Family Shield configuration and state.
// ShieldStatus must only be changed with a conditional update keyed on the
// expected prior status.
type ShieldSettings struct {
	Base
	UserID                         string `gorm:"type:uuid;not null;uniqueIndex"`
	User                           User   `gorm:"constraint:OnDelete:CASCADE;"`
	InactivityPeriodMonths         int    `gorm:"not null;default:6"`
	RequiredGuardiansForActivation int    `gorm:"not null;default:1"`
	IsShieldEnabled                bool   `gorm:"not null;default:false;index"`
	ShieldStatus                   string `gorm:"not null;default:'inactive';index"`
	LastActivityCheck              *time.Time
	StatusChangedAt                *time.Time
}

// TableName keeps the table plural even though the struct name already is.
func (ShieldSettings) TableName() string {
	return "shield_settings"
}

// CheckInToken is the single-use secret embedded in the "I'm still here"
// link sent to a user when inactivity is detected. Only the hash is stored.
type CheckInToken struct {
	Base
	UserID     string    `gorm:"type:uuid;not null;index"`
	TokenHash  string    `gorm:"not null;uniqueIndex"`
	ExpiresAt  time.Time `gorm:"not null"`
	ConsumedAt *time.Time
}
