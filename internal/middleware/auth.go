package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autoflow/internal/config"
)

// AuthMiddleware guards the management API with a static bearer token. When
// no token is configured, auth is disabled (local development).
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	token := cfg.Security.APIToken
	if token == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		presented := strings.TrimPrefix(header, "Bearer ")
		if presented == header || presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
