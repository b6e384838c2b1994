package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/family-shield/internal/models"
	"github.com/markbates/goth"
	"gorm.io/gorm"
)

// UpsertUser records a completed OAuth sign-in: the owner row is created or
// refreshed, last_sign_in_at moves to now, and the provider identity with
// its tokens is stored. Signing in is the primary activity signal the
// inactivity detector reads.
func UpsertUser(ctx context.Context, db *gorm.DB, gu goth.User, now time.Time) (*models.User, error) {
	if gu.Email == "" {
		return nil, errors.New("provider returned no email")
	}

	var user models.User
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", gu.Email).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				Email:        gu.Email,
				Name:         gu.Name,
				Role:         models.RoleUser,
				LastSignInAt: &now,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}
		case err != nil:
			return err
		default:
			updates := map[string]interface{}{"last_sign_in_at": now}
			if gu.Name != "" {
				updates["name"] = gu.Name
			}
			if err := tx.Model(&user).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update user: %w", err)
			}
		}

		return upsertIdentity(tx, user.ID, gu)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func upsertIdentity(tx *gorm.DB, userID string, gu goth.User) error {
	provider := gu.Provider
	if provider == "" {
		provider = providerGoogle
	}

	var expiry *time.Time
	if !gu.ExpiresAt.IsZero() {
		e := gu.ExpiresAt.UTC()
		expiry = &e
	}

	var identity models.AuthIdentity
	err := tx.Where("provider = ? AND provider_user_id = ?", provider, gu.UserID).First(&identity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = models.AuthIdentity{
			UserID:         userID,
			Provider:       provider,
			ProviderUserID: gu.UserID,
			AccessToken:    gu.AccessToken,
			RefreshToken:   gu.RefreshToken,
			TokenExpiry:    expiry,
		}
		return tx.Create(&identity).Error
	}
	if err != nil {
		return err
	}

	identity.UserID = userID
	identity.AccessToken = gu.AccessToken
	if gu.RefreshToken != "" {
		identity.RefreshToken = gu.RefreshToken
	}
	identity.TokenExpiry = expiry
	// Save runs BeforeSave so the tokens are re-encrypted.
	return tx.Save(&identity).Error
}
