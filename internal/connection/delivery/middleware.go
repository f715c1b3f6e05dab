package delivery

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OwnerKey holds the authenticated owner email in the gin context
const OwnerKey = "owner"

type SessionValidator interface {
	ValidateSession(token string) (string, error)
}

// AuthMiddleware accepts a session token issued by the Google callback and
// makes its owner available through Owner.
func AuthMiddleware(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		owner, err := sessions.ValidateSession(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(OwnerKey, owner)
		c.Next()
	}
}

// Owner returns the owner set by AuthMiddleware, or "" outside it
func Owner(c *gin.Context) string {
	return c.GetString(OwnerKey)
}
