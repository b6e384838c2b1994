package shield

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyGuardiansWhilePending(t *testing.T) {
	db := testutil.NewDB(t)
	f := newFixture(db, time.Now())
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "owner@example.com", time.Now().AddDate(-1, 0, 0))
	testutil.CreateSettings(t, db, user.ID, 6, models.ShieldStatusInactive)
	testutil.CreateGuardian(t, db, user.ID, "g1@example.com", models.GuardianPermissions{CanAccessHealthDocs: true})
	testutil.CreateGuardian(t, db, user.ID, "g2@example.com", models.GuardianPermissions{IsChildGuardian: true})
	toPending(t, f, user.ID)

	n, err := f.notifier.NotifyGuardians(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, f.mailer.access, 2)
	require.Len(t, f.mailer.codes, 2)
	for _, notice := range f.mailer.access {
		assert.True(t, strings.HasPrefix(notice.AccessURL, "https://shield.example/emergency-access?token="))
		assert.NotContains(t, notice.AccessURL, "code")
	}
	for _, notice := range f.mailer.codes {
		assert.Len(t, notice.VerificationCode, 6)
	}

	var tokens int64
	require.NoError(t, db.Model(&models.EmergencyAccessToken{}).Where("user_id = ?", user.ID).Count(&tokens).Error)
	assert.Equal(t, int64(2), tokens)
	assert.Contains(t, activationTypes(t, f, user.ID), models.ActivationGuardiansNotified)
}

func TestNotifyGuardiansSkipsAfterCheckIn(t *testing.T) {
	db := testutil.NewDB(t)
	f := newFixture(db, time.Now())
	user := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	testutil.CreateSettings(t, db, user.ID, 6, models.ShieldStatusInactive)
	testutil.CreateGuardian(t, db, user.ID, "g1@example.com", models.GuardianPermissions{})

	n, err := f.notifier.NotifyGuardians(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.mailer.access)
}

func TestNotifyGuardiansWithoutSettings(t *testing.T) {
	db := testutil.NewDB(t)
	f := newFixture(db, time.Now())

	_, err := f.notifier.NotifyGuardians(context.Background(), "00000000-0000-0000-0000-000000000001")
	assert.ErrorIs(t, err, ErrSettingsNotFound)
}
