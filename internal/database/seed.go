package database

import (
	"log/slog"
	"time"

	"github.com/jimdaga/family-shield/internal/models"
	"gorm.io/gorm"
)

const devOwnerEmail = "dev@familyshield.local"

// SeedDevData populates the database with a development vault owner, two
// guardians, shield settings and one document per disclosure group.
// Idempotent: skips if the dev owner already exists.
func SeedDevData(db *gorm.DB) error {
	var existing models.User
	if err := db.Where("email = ?", devOwnerEmail).First(&existing).Error; err == nil {
		slog.Info("Seed data already exists, skipping")
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		lastSeen := time.Now().AddDate(0, -7, 0)
		owner := models.User{
			Email:        devOwnerEmail,
			Name:         "Dev Owner",
			Role:         models.RoleAdmin,
			LastSignInAt: &lastSeen,
		}
		if err := tx.Create(&owner).Error; err != nil {
			return err
		}

		settings := models.ShieldSettings{
			UserID:                         owner.ID,
			InactivityPeriodMonths:         6,
			RequiredGuardiansForActivation: 1,
			IsShieldEnabled:                true,
			ShieldStatus:                   models.ShieldStatusInactive,
		}
		if err := tx.Create(&settings).Error; err != nil {
			return err
		}

		guardians := []models.Guardian{
			{
				UserID: owner.ID,
				Name:   "Health Guardian",
				Email:  "health-guardian@familyshield.local",
				Permissions: models.GuardianPermissions{
					CanAccessHealthDocs: true,
				},
			},
			{
				UserID: owner.ID,
				Name:   "Executor",
				Email:  "executor@familyshield.local",
				Permissions: models.GuardianPermissions{
					CanAccessFinancialDocs: true,
					IsWillExecutor:         true,
				},
			},
		}
		if err := tx.Create(&guardians).Error; err != nil {
			return err
		}

		documents := []models.Document{
			{UserID: owner.ID, Title: "Health insurance card", FileType: "application/pdf", Category: "insurance", EncryptedFileURL: "user_documents/dev/insurance-card.pdf.enc"},
			{UserID: owner.ID, Title: "Brokerage statement", FileType: "application/pdf", Category: "investment", EncryptedFileURL: "user_documents/dev/brokerage.pdf.enc"},
			{UserID: owner.ID, Title: "Last will", FileType: "application/pdf", Category: "will", EncryptedFileURL: "user_documents/dev/will.pdf.enc"},
			{UserID: owner.ID, Title: "School enrollment", FileType: "image/png", Category: "education", EncryptedFileURL: "user_documents/dev/enrollment.png.enc"},
			{UserID: owner.ID, Title: "Gym membership", FileType: "application/pdf", Category: "other", EncryptedFileURL: "user_documents/dev/gym.pdf.enc"},
		}
		if err := tx.Create(&documents).Error; err != nil {
			return err
		}

		slog.Info("Seeded dev data", "owner", owner.Email, "guardians", len(guardians), "documents", len(documents))
		return nil
	})
}
