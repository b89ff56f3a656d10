package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Tsipchain/driver-platform/domain"
)

// SessionMiddleware resolves the bearer session token to a driver. When
// required is false, a missing or dead token leaves the request anonymous.
func SessionMiddleware(sessions domain.SessionService, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
			return
		}

		driver, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
			return
		}

		c.Set(driverKey, driver)
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header
func BearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
