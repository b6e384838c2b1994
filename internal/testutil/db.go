// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jimdaga/family-shield/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens an isolated in-memory SQLite database with every model
// migrated. The database is dropped when the test ends.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serializes writes the way SQLite expects.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	return db
}

// CreateUser inserts a vault owner whose last sign-in was lastSeen.
func CreateUser(t *testing.T, db *gorm.DB, email string, lastSeen time.Time) *models.User {
	t.Helper()
	lastSeen = lastSeen.UTC()
	u := &models.User{Email: email, Name: email, Role: models.RoleUser, LastSignInAt: &lastSeen}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreateSettings inserts enabled shield settings for userID.
func CreateSettings(t *testing.T, db *gorm.DB, userID string, months int, status string) *models.ShieldSettings {
	t.Helper()
	s := &models.ShieldSettings{
		UserID:                         userID,
		InactivityPeriodMonths:         months,
		RequiredGuardiansForActivation: 1,
		IsShieldEnabled:                true,
		ShieldStatus:                   status,
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("create settings: %v", err)
	}
	return s
}

// CreateGuardian inserts a guardian of userID with perms.
func CreateGuardian(t *testing.T, db *gorm.DB, userID, email string, perms models.GuardianPermissions) *models.Guardian {
	t.Helper()
	g := &models.Guardian{UserID: userID, Name: email, Email: email, Permissions: perms}
	if err := db.Create(g).Error; err != nil {
		t.Fatalf("create guardian: %v", err)
	}
	return g
}

// CreateDocument inserts a document owned by userID.
func CreateDocument(t *testing.T, db *gorm.DB, userID, title, category, fileURL string) *models.Document {
	t.Helper()
	d := &models.Document{UserID: userID, Title: title, FileType: "application/pdf", Category: category, EncryptedFileURL: fileURL}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("create document: %v", err)
	}
	return d
}

// CountAccessLogs counts audit rows of accessType.
func CountAccessLogs(t *testing.T, db *gorm.DB, accessType string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.EmergencyAccessLog{}).Where("access_type = ?", accessType).Count(&n).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	return n
}
