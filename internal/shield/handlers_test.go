package shield

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/family-shield/internal/models"
	"github.com/jimdaga/family-shield/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter mounts the handlers with a fake session layer that sets the
// given user and role.
func newTestRouter(f *fixture, userID, role, cronSecret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(f.db, f.lifecycle, f.detector, f.tokens, cronSecret, quietLogger())

	r := gin.New()
	r.POST("/internal/inactivity-check", h.TriggerInactivityCheck)
	r.POST("/check-in", h.CheckInWithToken)

	api := r.Group("/api/shield", func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("user_role", role)
		c.Next()
	})
	api.GET("", h.GetShield)
	api.PUT("/settings", h.UpdateSettings)
	api.POST("/check-in", h.CheckIn)
	api.POST("/guardians/:id/tokens", h.IssueToken)
	api.DELETE("/tokens/:id", h.RevokeToken)
	api.POST("/reset", h.AdminReset)
	return r
}

func do(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTriggerInactivityCheckAuth(t *testing.T) {
	db := testutil.NewDB(t)
	f := newFixture(db, time.Now().UTC())
	user := testutil.CreateUser(t, db, "owner@example.com", time.Now().AddDate(-1, 0, 0))
	testutil.CreateSettings(t, db, user.ID, 6, models.ShieldStatusInactive)

	r := newTestRouter(f, "", "", "s3cret")

	w := do(r, http.MethodPost, "/internal/inactivity-check", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/internal/inactivity-check", "", map[string]string{CronSecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/internal/inactivity-check", "", map[string]string{CronSecretHeader: "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Inactivity check completed","processed":1,"triggered":1}`, w.Body.String())

	disabled := newTestRouter(f, "", "", "")
	w = do(disabled, http.MethodPost, "/internal/inactivity-check", "", map[string]string{CronSecretHeader: ""})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOwnerSettingsAndTokens(t *testing.T) {
	db := testutil.NewDB(t)
	f := newFixture(db, time.Now().UTC())
	user := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	guardian := testutil.CreateGuardian(t, db, user.ID, "g@example.com", models.GuardianPermissions{IsChildGuardian: true})
	r := newTestRouter(f, user.ID, models.RoleUser, "")

	w := do(r, http.MethodGet, "/api/shield", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPut, "/api/shield/settings", `{"inactivity_period_months":0}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/api/shield/settings", `{"is_shield_enabled":true,"inactivity_period_months":3}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"inactivity_period_months":3`)

	w = do(r, http.MethodPost, "/api/shield/guardians/"+guardian.ID+"/tokens", "", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var issued map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.NotEmpty(t, issued["token"])
	tokenID := issued["id"].(string)

	w = do(r, http.MethodPost, "/api/shield/guardians/00000000-0000-0000-0000-000000000000/tokens", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodPost, "/api/shield/guardians/not-a-uuid/tokens", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/shield", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), issued["token"].(string))
	assert.NotContains(t, w.Body.String(), "verification_code")

	w = do(r, http.MethodDelete, "/api/shield/tokens/"+tokenID, "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodDelete, "/api/shield/tokens/00000000-0000-0000-0000-000000000000", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = do(r, http.MethodDelete, "/api/shield/tokens/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckInEndpoints(t *testing.T) {
	db := testutil.NewDB(t)
	f := newFixture(db, time.Now().UTC())
	user := testutil.CreateUser(t, db, "owner@example.com", time.Now().AddDate(-1, 0, 0))
	testutil.CreateSettings(t, db, user.ID, 6, models.ShieldStatusInactive)
	toPending(t, f, user.ID)
	r := newTestRouter(f, user.ID, models.RoleUser, "")

	token, err := f.lifecycle.IssueCheckInToken(context.Background(), user.ID, time.Hour)
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/check-in", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/check-in", `{"token":"`+token+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), models.ShieldStatusInactive)

	w = do(r, http.MethodPost, "/check-in", `{"token":"`+token+`"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/shield/check-in", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminResetRequiresAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	f := newFixture(db, time.Now().UTC())
	user := testutil.CreateUser(t, db, "owner@example.com", time.Now())
	testutil.CreateSettings(t, db, user.ID, 6, models.ShieldStatusActive)
	body := `{"user_id":"` + user.ID + `"}`

	w := do(newTestRouter(f, user.ID, models.RoleUser, ""), http.MethodPost, "/api/shield/reset", body, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := newTestRouter(f, "admin-1", models.RoleAdmin, "")
	w = do(admin, http.MethodPost, "/api/shield/reset", `{"user_id":"not-a-uuid"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(admin, http.MethodPost, "/api/shield/reset", body, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(admin, http.MethodPost, "/api/shield/reset", body, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}
