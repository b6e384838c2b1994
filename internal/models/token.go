package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EmergencyAccessToken binds one guardian to one owner's disclosure scope.
// Only the SHA-256 of the bearer token is stored. IsActive only ever flips
// true -> false.
type EmergencyAccessToken struct {
	Base
	UserID               string    `gorm:"type:uuid;not null;index"`
	GuardianID           string    `gorm:"type:uuid;not null;index"`
	Guardian             Guardian  `gorm:"constraint:OnDelete:CASCADE;"`
	TokenHash            string    `gorm:"not null;uniqueIndex"`
	ExpiresAt            time.Time `gorm:"not null;index"`
	IsActive             bool      `gorm:"not null;default:true;index"`
	ActivationDate       *time.Time
	LastVerifiedAt       *time.Time
	RequiresVerification bool   `gorm:"not null;default:false"`
	VerificationCode     string `gorm:"type:text"` // stored encrypted
	FailedAttempts       int    `gorm:"column:failed_verification_attempts;not null;default:0"`
	Permissions          datatypes.JSONType[GuardianPermissions]
	RevokedAt            *time.Time
}

// BeforeSave encrypts the verification code.
func (t *EmergencyAccessToken) BeforeSave(tx *gorm.DB) error {
	return encryptField(&t.VerificationCode)
}

// AfterFind decrypts the verification code.
func (t *EmergencyAccessToken) AfterFind(tx *gorm.DB) error {
	return decryptField(&t.VerificationCode)
}

// UsableAt reports whether the token may authorize access at now.
func (t *EmergencyAccessToken) UsableAt(now time.Time) bool {
	return t.IsActive && now.Before(t.ExpiresAt)
}
