package shield

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jimdaga/family-shield/internal/audit"
	"github.com/jimdaga/family-shield/internal/emergency"
	"github.com/jimdaga/family-shield/internal/webhook"
	"gorm.io/gorm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMailer records every notification instead of posting it.
type fakeMailer struct {
	mu        sync.Mutex
	reminders []webhook.CheckInReminder
	access    []webhook.GuardianAccessNotice
	codes     []webhook.VerificationCodeNotice
	err       error
}

func (m *fakeMailer) SendCheckInReminder(ctx context.Context, r webhook.CheckInReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders = append(m.reminders, r)
	return m.err
}

func (m *fakeMailer) SendGuardianAccess(ctx context.Context, n webhook.GuardianAccessNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = append(m.access, n)
	return m.err
}

func (m *fakeMailer) SendVerificationCode(ctx context.Context, n webhook.VerificationCodeNotice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, n)
	return m.err
}

type fakeScheduler struct {
	userIDs []string
}

func (s *fakeScheduler) ScheduleGuardianNotification(ctx context.Context, userID string) error {
	s.userIDs = append(s.userIDs, userID)
	return nil
}

type fixture struct {
	db        *gorm.DB
	lifecycle *Lifecycle
	detector  *Detector
	tokens    *emergency.TokenService
	notifier  *GuardianNotifier
	mailer    *fakeMailer
	scheduler *fakeScheduler
}

func newFixture(db *gorm.DB, now time.Time) *fixture {
	auditLogger := audit.NewLogger(db, nil, quietLogger())
	lifecycle := NewLifecycle(db, auditLogger, quietLogger())
	mailer := &fakeMailer{}
	scheduler := &fakeScheduler{}

	detector := NewDetector(db, lifecycle, mailer, scheduler, DetectorOptions{
		AppBaseURL:      "https://shield.example",
		CheckInTokenTTL: 30 * 24 * time.Hour,
	}, quietLogger())
	detector.now = func() time.Time { return now }

	tokens := emergency.NewTokenService(db, auditLogger, lifecycle, emergency.TokenOptions{
		TTL:                 7 * 24 * time.Hour,
		RequireVerification: true,
	}, quietLogger())

	return &fixture{
		db:        db,
		lifecycle: lifecycle,
		detector:  detector,
		tokens:    tokens,
		notifier:  NewGuardianNotifier(db, lifecycle, tokens, mailer, "https://shield.example", quietLogger()),
		mailer:    mailer,
		scheduler: scheduler,
	}
}
