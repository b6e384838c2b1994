package streams

import (
	"context"
	"testing"
	"time"

	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleActivityEventMovesSignInForward(t *testing.T) {
	db := testutil.NewDB(t)
	old := time.Now().UTC().AddDate(0, -8, 0)
	user := testutil.CreateUser(t, db, "owner@example.com", old)

	recent := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	handler := HandleActivityEvent(db)
	require.NoError(t, handler(context.Background(), ActivityEvent{UserID: user.ID, Source: "mobile", OccurredAt: recent}))

	var got models.User
	require.NoError(t, db.First(&got, "id = ?", user.ID).Error)
	require.NotNil(t, got.LastSignInAt)
	assert.WithinDuration(t, recent, *got.LastSignInAt, time.Second)
}

func TestHandleActivityEventIgnoresStaleEvents(t *testing.T) {
	db := testutil.NewDB(t)
	recent := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	user := testutil.CreateUser(t, db, "owner@example.com", recent)

	handler := HandleActivityEvent(db)
	require.NoError(t, handler(context.Background(), ActivityEvent{Email: user.Email, Source: "web", OccurredAt: recent.AddDate(0, -1, 0)}))

	var got models.User
	require.NoError(t, db.First(&got, "id = ?", user.ID).Error)
	assert.WithinDuration(t, recent, *got.LastSignInAt, time.Second)
}

func TestHandleActivityEventWithoutUserReference(t *testing.T) {
	db := testutil.NewDB(t)
	assert.NoError(t, HandleActivityEvent(db)(context.Background(), ActivityEvent{Source: "web"}))
}

func TestHandleActivityEventClampsFutureTimestamps(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "owner@example.com", time.Now().UTC().AddDate(0, -8, 0))

	future := time.Now().UTC().AddDate(5, 0, 0)
	require.NoError(t, HandleActivityEvent(db)(context.Background(), ActivityEvent{UserID: user.ID, Source: "mobile", OccurredAt: future}))

	var got models.User
	require.NoError(t, db.First(&got, "id = ?", user.ID).Error)
	require.NotNil(t, got.LastSignInAt)
	assert.False(t, got.LastSignInAt.After(time.Now().UTC()))
	assert.WithinDuration(t, time.Now().UTC(), *got.LastSignInAt, 5*time.Second)
}

func TestHandleActivityEventMalformedUserID(t *testing.T) {
	db := testutil.NewDB(t)
	assert.NoError(t, HandleActivityEvent(db)(context.Background(), ActivityEvent{UserID: "not-a-uuid", Source: "web"}))
}
