package emergency

import (
	"context"
	"testing"
	"time"

	"github.com/jimdaga/family-shield/internal/audit"
	"github.com/jimdaga/family-shield/internal/crypto"
	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testReq = audit.RequestInfo{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

func TestIssueAndValidateWithVerification(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{CanAccessHealthDocs: true})
	spy := &activationSpy{}
	svc := newTokenService(db, true, spy)

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)
	assert.Len(t, issued.Token, 43)
	assert.Len(t, issued.VerificationCode, 6)
	assert.True(t, issued.Permissions.CanAccessHealthDocs)

	var stored models.EmergencyAccessToken
	require.NoError(t, db.First(&stored, "id = ?", issued.ID).Error)
	assert.Equal(t, crypto.HashToken(issued.Token), stored.TokenHash)
	assert.NotEqual(t, issued.Token, stored.TokenHash)

	_, err = svc.Validate(ctx, issued.Token, "", testReq)
	assert.ErrorIs(t, err, ErrVerificationRequired)

	_, err = svc.Validate(ctx, issued.Token, "000000x", testReq)
	assert.ErrorIs(t, err, ErrInvalidVerificationCode)

	access, err := svc.Validate(ctx, issued.Token, issued.VerificationCode, testReq)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, access.UserID)
	assert.Equal(t, guardian.ID, access.GuardianID)
	assert.True(t, access.Permissions.CanAccessHealthDocs)
	assert.Equal(t, [][2]string{{owner.ID, guardian.ID}}, spy.calls)

	require.NoError(t, db.First(&stored, "id = ?", issued.ID).Error)
	assert.NotNil(t, stored.ActivationDate)

	// Exactly one row per Validate call
	rows, metas := accessLogs(t, db, models.AccessTypeTokenVerification)
	require.Len(t, rows, 3)
	outcomes := []interface{}{metas[0]["outcome"], metas[1]["outcome"], metas[2]["outcome"]}
	assert.ElementsMatch(t, []interface{}{
		audit.OutcomeVerificationRequired,
		audit.OutcomeInvalidVerificationCode,
		audit.OutcomeGranted,
	}, outcomes)
	for i, r := range rows {
		require.NotNil(t, r.TokenID)
		assert.Equal(t, issued.ID, *r.TokenID)
		assert.Equal(t, "203.0.113.7", r.IPAddress)
		assert.Equal(t, "test-agent", r.UserAgent)
		assert.Equal(t, true, metas[i]["verification_required"])
	}
}

func TestValidateMissingCodeLogsVerificationNotProvided(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{})
	svc := newTokenService(db, true, nil)

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, issued.Token, "", testReq)
	require.ErrorIs(t, err, ErrVerificationRequired)

	_, metas := accessLogs(t, db, models.AccessTypeTokenVerification)
	require.Len(t, metas, 1)
	assert.Equal(t, false, metas[0]["verification_provided"])
	assert.Equal(t, audit.OutcomeVerificationRequired, metas[0]["outcome"])
}

func TestValidateWithoutVerificationRequirement(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{IsWillExecutor: true})
	svc := newTokenService(db, false, nil)

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)
	assert.Empty(t, issued.VerificationCode)

	access, err := svc.Validate(ctx, issued.Token, "", testReq)
	require.NoError(t, err)
	assert.True(t, access.Permissions.IsWillExecutor)
}

func TestIssueRejectsForeignGuardian(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	other := testutil.CreateUser(t, db, "other@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, other.ID, "g@example.com", models.GuardianPermissions{})
	svc := newTokenService(db, true, nil)

	_, err := svc.Issue(context.Background(), owner.ID, guardian.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidateUnknownTokenIsLogged(t *testing.T) {
	db := testutil.NewDB(t)
	svc := newTokenService(db, true, nil)

	for _, token := range []string{"", "no-such-token"} {
		_, err := svc.Validate(context.Background(), token, "", testReq)
		assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
	}

	rows, metas := accessLogs(t, db, models.AccessTypeTokenVerification)
	require.Len(t, rows, 2)
	for i, r := range rows {
		assert.Nil(t, r.TokenID)
		assert.Nil(t, r.UserID)
		assert.Equal(t, audit.OutcomeInvalidOrExpired, metas[i]["outcome"])
		assert.Equal(t, false, metas[i]["verification_required"])
	}
	assert.ElementsMatch(t, []interface{}{"missing", "not_found"}, []interface{}{metas[0]["reason"], metas[1]["reason"]})
}

func TestValidateExpiredTokenFailsEvenWhenActive(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{})
	svc := newTokenService(db, false, nil)

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)

	// Exactly at expiry is already expired.
	svc.now = func() time.Time { return issued.ExpiresAt }
	_, err = svc.Validate(ctx, issued.Token, "", testReq)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	var stored models.EmergencyAccessToken
	require.NoError(t, db.First(&stored, "id = ?", issued.ID).Error)
	assert.True(t, stored.IsActive)

	rows, metas := accessLogs(t, db, models.AccessTypeTokenVerification)
	require.Len(t, rows, 1)
	assert.Equal(t, "expired", metas[0]["reason"])
	require.NotNil(t, rows[0].TokenID)
	assert.Equal(t, issued.ID, *rows[0].TokenID)
}

func TestIssueSnapshotsPermissions(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{CanAccessFinancialDocs: true})
	svc := newTokenService(db, false, nil)

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Guardian{}).Where("id = ?", guardian.ID).
		Update("can_access_financial_docs", false).Error)

	access, err := svc.Validate(ctx, issued.Token, "", testReq)
	require.NoError(t, err)
	assert.True(t, access.Permissions.CanAccessFinancialDocs)
}

func TestRevoke(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	other := testutil.CreateUser(t, db, "other@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{})
	svc := newTokenService(db, false, nil)

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Revoke(ctx, other.ID, issued.ID), ErrNotFound)
	require.NoError(t, svc.Revoke(ctx, owner.ID, issued.ID))
	// Idempotent
	require.NoError(t, svc.Revoke(ctx, owner.ID, issued.ID))

	var stored models.EmergencyAccessToken
	require.NoError(t, db.First(&stored, "id = ?", issued.ID).Error)
	assert.False(t, stored.IsActive)
	assert.NotNil(t, stored.RevokedAt)

	_, err = svc.Validate(ctx, issued.Token, "", testReq)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestConsume(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{})
	svc := newTokenService(db, false, nil)

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Consume(ctx, issued.ID))

	_, err = svc.Validate(ctx, issued.Token, "", testReq)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestExpireStale(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{})
	svc := newTokenService(db, false, nil)

	stale, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(6 * 24 * time.Hour) }
	fresh, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)

	svc.now = func() time.Time { return stale.ExpiresAt.Add(time.Minute) }
	n, err := svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var tokens []models.EmergencyAccessToken
	require.NoError(t, db.Find(&tokens).Error)
	for _, tok := range tokens {
		switch tok.ID {
		case stale.ID:
			assert.False(t, tok.IsActive)
		case fresh.ID:
			assert.True(t, tok.IsActive)
		}
	}
}

func TestWrongVerificationCodesLockToken(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{})
	svc := newTokenService(db, true, nil)
	svc.opts.MaxVerificationAttempts = 3

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Validate(ctx, issued.Token, "wrong", testReq)
		assert.ErrorIs(t, err, ErrInvalidVerificationCode)
	}

	var stored models.EmergencyAccessToken
	require.NoError(t, db.First(&stored, "id = ?", issued.ID).Error)
	assert.False(t, stored.IsActive)
	assert.Equal(t, 3, stored.FailedAttempts)

	// The right code no longer helps once the token is locked.
	_, err = svc.Validate(ctx, issued.Token, issued.VerificationCode, testReq)
	assert.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	_, metas := accessLogs(t, db, models.AccessTypeTokenVerification)
	require.Len(t, metas, 4)
	reasons := []interface{}{}
	for _, m := range metas {
		reasons = append(reasons, m["reason"])
	}
	assert.Contains(t, reasons, "attempts_exhausted")
	assert.Contains(t, reasons, "inactive")
}

func TestWrongVerificationCodesBelowCapKeepToken(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, owner.ID, "g@example.com", models.GuardianPermissions{})
	svc := newTokenService(db, true, nil)
	svc.opts.MaxVerificationAttempts = 3

	issued, err := svc.Issue(ctx, owner.ID, guardian.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.Validate(ctx, issued.Token, "wrong", testReq)
		assert.ErrorIs(t, err, ErrInvalidVerificationCode)
	}
	_, err = svc.Validate(ctx, issued.Token, issued.VerificationCode, testReq)
	require.NoError(t, err)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	owner := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	svc := newTokenService(db, false, nil)

	_, err := svc.Issue(ctx, owner.ID, "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Revoke(ctx, owner.ID, "not-a-uuid"), ErrNotFound)
}
