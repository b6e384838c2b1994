package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth/gothic"
	"gorm.io/gorm"
)

// Session keys
const (
	sessionUserID    = "user_id"
	sessionUserEmail = "user_email"
	sessionUserName  = "user_name"
	sessionUserRole  = "user_role"
)

func withProvider(c *gin.Context) {
	// Gothic requires the "provider" query parameter
	q := c.Request.URL.Query()
	q.Set("provider", providerGoogle)
	c.Request.URL.RawQuery = q.Encode()
}

// HandleLogin initiates the Google OAuth flow
func HandleLogin(c *gin.Context) {
	withProvider(c)
	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleCallback completes the OAuth flow, records the sign-in and stores
// the owner in the session.
func HandleCallback(db *gorm.DB, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		withProvider(c)

		gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
		if err != nil {
			logger.Warn("OAuth callback failed", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication failed"})
			return
		}

		user, err := UpsertUser(c.Request.Context(), db, gothUser, time.Now().UTC())
		if err != nil {
			logger.Error("Failed to record sign-in", "email", gothUser.Email, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		session := sessions.Default(c)
		session.Set(sessionUserID, user.ID)
		session.Set(sessionUserEmail, user.Email)
		session.Set(sessionUserName, user.Name)
		session.Set(sessionUserRole, user.Role)

		if err := session.Save(); err != nil {
			logger.Error("Session save failed", "user_id", user.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		logger.Info("Owner signed in", "user_id", user.ID)
		c.Redirect(http.StatusFound, "/")
	}
}

// HandleLogout clears the session.
func HandleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})

	if err := session.Save(); err != nil {
		slog.Error("Session clear failed", "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
