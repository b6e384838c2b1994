package server

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/family-shield/internal/auth"
	"github.com/jimdaga/family-shield/internal/emergency"
	"github.com/jimdaga/family-shield/internal/health"
	"github.com/jimdaga/family-shield/internal/metrics"
	"github.com/jimdaga/family-shield/internal/middleware"
	"github.com/jimdaga/family-shield/internal/shield"
)

const sessionName = "shield_session"

// NewRouter builds the HTTP surface: guardian endpoints (rate limited, no
// session), owner endpoints (session required), the scheduler trigger and
// operational probes.
func NewRouter(app *App) *gin.Engine {
	cfg := app.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// X-Forwarded-For is honoured only from configured proxies; the guardian
	// rate limiter and audit rows key on the resulting client IP.
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		app.Logger.Error("Invalid trusted proxy list, trusting none", "error", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery(), middleware.RequestLogger(app.Logger))

	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	emergencyHandler := emergency.NewHandler(app.Tokens, app.Disclosure, cfg.SingleUseTokens, app.Logger)
	shieldHandler := shield.NewHandler(app.DB, app.Lifecycle, app.Detector, app.Tokens, cfg.CronSecret, app.Logger)

	r.GET("/health", gin.WrapF(health.Handler))
	r.GET("/ready", health.Ready(app.DB))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Guardian surface
	limited := middleware.RateLimit(middleware.NewIPRateLimiter(cfg.GuardianRateLimit, cfg.GuardianRateBurst))
	r.POST("/verify-emergency-access", limited, emergencyHandler.Verify)
	r.POST("/download-emergency-document", limited, emergencyHandler.Download)
	r.POST("/check-in", limited, shieldHandler.CheckInWithToken)

	// Scheduler trigger
	r.POST("/internal/inactivity-check", shieldHandler.TriggerInactivityCheck)

	// Owner login
	r.GET("/auth/google", auth.HandleLogin)
	r.GET("/auth/google/callback", auth.HandleCallback(app.DB, app.Logger))
	r.POST("/logout", auth.HandleLogout)

	api := r.Group("/api/shield", auth.RequireAuth())
	{
		api.GET("", shieldHandler.GetShield)
		api.PUT("/settings", shieldHandler.UpdateSettings)
		api.POST("/check-in", shieldHandler.CheckIn)
		api.POST("/guardians/:id/tokens", shieldHandler.IssueToken)
		api.DELETE("/tokens/:id", shieldHandler.RevokeToken)
		api.POST("/reset", shieldHandler.AdminReset)
	}

	return r
}
