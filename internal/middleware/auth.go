// Package middleware provides the gin middleware guarding the REST
// surface.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kiran-v/ripplechat/internal/auth"
)

// Context keys for the claims stored per request. Constants rather than
// inline strings so a typo fails at the call site, not silently.
const (
	ContextKeyUserID      = "user_id"
	ContextKeyDisplayName = "display_name"
)

// AuthMiddleware validates the Authorization bearer token and stores
// the verified identity in the request context. Requests without a
// valid token are aborted with 401 before any handler runs.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		principal, err := verifier.Verify(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(ContextKeyUserID, principal.UserID)
		c.Set(ContextKeyDisplayName, principal.DisplayName)
		c.Next()
	}
}

// GetUserID returns the authenticated user's id, or uuid.Nil when the
// middleware did not run. uuid.Nil never matches a row, so downstream
// queries fail closed.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetDisplayName(c *gin.Context) string {
	val, exists := c.Get(ContextKeyDisplayName)
	if !exists {
		return ""
	}
	name, ok := val.(string)
	if !ok {
		return ""
	}
	return name
}
