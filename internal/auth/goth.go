package auth

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/jimdaga/family-shield/internal/config"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
)

// providerGoogle is the only owner login provider.
const providerGoogle = "google"

// InitProviders initializes Goth OAuth providers
func InitProviders(cfg *config.Config, logger *slog.Logger) {
	// Gothic keeps the OAuth state in its own gorilla/sessions store,
	// separate from the gin-contrib/sessions owner session.
	gothStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	gothStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	gothic.Store = gothStore

	if cfg.GoogleClientID == "" {
		logger.Warn("GOOGLE_CLIENT_ID not set; owner login is disabled until credentials are configured")
		return
	}

	goth.UseProviders(
		google.New(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleCallbackURL,
			"email",
			"profile",
		),
	)

	logger.Info("Goth providers initialized", "providers", providerGoogle)
}
