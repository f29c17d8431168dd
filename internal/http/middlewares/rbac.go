package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin gates the elevated-capability routes. It assumes RequireAuth
// already ran on the chain.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)

		if p.Anonymous() {
			abortUnauthenticated(c, "missing identity context")
			return
		}

		if !p.Admin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"message": "admin role required",
			})
			return
		}

		c.Next()
	}
}
