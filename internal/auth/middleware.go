package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// RequireAuth rejects requests without an owner session and exposes the
// session fields to downstream handlers via the gin context.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, _ := session.Get(sessionUserID).(string)

		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Set("user_id", userID)
		c.Set("user_email", stringValue(session.Get(sessionUserEmail)))
		c.Set("user_name", stringValue(session.Get(sessionUserName)))
		c.Set("user_role", stringValue(session.Get(sessionUserRole)))

		c.Next()
	}
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
