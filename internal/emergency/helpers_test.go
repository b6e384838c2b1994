package emergency

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jimdaga/family-shield/internal/audit"
	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/storage"
	"gorm.io/gorm"
)

const testBucket = "user_documents"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSigner struct {
	mu      sync.Mutex
	objects []string
	err     error
}

func (f *fakeSigner) SignedURL(ctx context.Context, object string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = append(f.objects, object)
	if f.err != nil {
		return "", f.err
	}
	return "https://signed.example/" + object, nil
}

var _ storage.Signer = (*fakeSigner)(nil)

type activationSpy struct {
	calls [][2]string
}

func (a *activationSpy) RecordGuardianVerification(ctx context.Context, userID, guardianID string) error {
	a.calls = append(a.calls, [2]string{userID, guardianID})
	return nil
}

func newTokenService(db *gorm.DB, requireVerification bool, activation ActivationRecorder) *TokenService {
	auditLogger := audit.NewLogger(db, nil, quietLogger())
	return NewTokenService(db, auditLogger, activation, TokenOptions{
		TTL:                 7 * 24 * time.Hour,
		RequireVerification: requireVerification,
	}, quietLogger())
}

func newDisclosure(db *gorm.DB, signer storage.Signer) *Disclosure {
	auditLogger := audit.NewLogger(db, nil, quietLogger())
	return NewDisclosure(db, auditLogger, signer, testBucket, time.Hour, quietLogger())
}

// accessLogs returns rows of accessType oldest first with decoded metadata.
func accessLogs(t *testing.T, db *gorm.DB, accessType string) ([]models.EmergencyAccessLog, []map[string]interface{}) {
	t.Helper()
	var rows []models.EmergencyAccessLog
	if err := db.Where("access_type = ?", accessType).Order("created_at").Find(&rows).Error; err != nil {
		t.Fatalf("load logs: %v", err)
	}
	metas := make([]map[string]interface{}, len(rows))
	for i, r := range rows {
		if err := json.Unmarshal(r.Metadata, &metas[i]); err != nil {
			t.Fatalf("decode metadata: %v", err)
		}
	}
	return rows, metas
}
