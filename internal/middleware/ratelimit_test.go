package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter_BurstThenDeny(t *testing.T) {
	l := NewIPRateLimiter(0.001, 2)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))

	// Separate bucket per IP
	assert.True(t, l.Allow("10.0.0.2"))
}

func TestIPRateLimiter_EvictsIdle(t *testing.T) {
	l := NewIPRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(idleLimiterTTL + time.Minute)
	l.Allow("10.0.0.2")

	assert.Len(t, l.visitors, 1)
	_, ok := l.visitors["10.0.0.2"]
	assert.True(t, ok)
}

func TestRateLimit_Returns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/verify", RateLimit(NewIPRateLimiter(0.001, 1)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verify", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verify", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}
