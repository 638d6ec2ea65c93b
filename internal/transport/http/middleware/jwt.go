package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"gopherai-search/internal/pkg/jwtutil"
	"gopherai-search/internal/transport/http/response"
)

const (
	ContextSessionIDKey = "session_id"
	ContextUserIDKey    = "user_id"
	ContextUsernameKey  = "username"
)

func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextSessionIDKey, claims.SessionID)
		c.Set(ContextUserIDKey, claims.UserID)
		c.Set(ContextUsernameKey, claims.Username)
		c.Next()
	}
}

// SessionID returns the conversation owner carried by the token.
func SessionID(c *gin.Context) (string, bool) {
	sessionID := c.GetString(ContextSessionIDKey)
	return sessionID, sessionID != ""
}
