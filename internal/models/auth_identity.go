package models

import (
	"time"

	"gorm.io/gorm"
)

// AuthIdentity links a User to an OAuth provider account. Provider tokens
// are encrypted at rest.
type AuthIdentity struct {
	Base
	UserID         string `gorm:"type:uuid;not null;index"`
	User           User   `gorm:"constraint:OnDelete:CASCADE;"`
	Provider       string `gorm:"not null;uniqueIndex:idx_auth_identities_provider_user"` // e.g., "google"
	ProviderUserID string `gorm:"not null;uniqueIndex:idx_auth_identities_provider_user"`
	AccessToken    string `gorm:"type:text"`
	RefreshToken   string `gorm:"type:text"`
	TokenExpiry    *time.Time
}

// BeforeSave encrypts provider tokens.
// GCM uses a random nonce, so re-saving always produces fresh ciphertext.
func (a *AuthIdentity) BeforeSave(tx *gorm.DB) error {
	if err := encryptField(&a.AccessToken); err != nil {
		return err
	}
	return encryptField(&a.RefreshToken)
}

// AfterFind decrypts provider tokens after loading from database
func (a *AuthIdentity) AfterFind(tx *gorm.DB) error {
	if err := decryptField(&a.AccessToken); err != nil {
		return err
	}
	return decryptField(&a.RefreshToken)
}
