// Package auth guards operational endpoints with a shared admin secret.
//
// Every scoring and graph read is public. Only endpoints that change
// service state (such as forcing a graph rebuild) require the secret,
// passed in the X-Admin-Secret header.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAdminSecret carries the admin secret.
	HeaderAdminSecret = "X-Admin-Secret"
	// ContextKeyAdmin marks a request that passed RequireAdmin.
	ContextKeyAdmin = "authAdmin"
)

// RequireAdmin rejects requests whose X-Admin-Secret does not match secret.
// With an empty secret the route is open when allowOpen is set (demo and
// development) and closed otherwise.
func RequireAdmin(secret string, allowOpen bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			if allowOpen {
				c.Set(ContextKeyAdmin, true)
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin endpoints are disabled: ADMIN_SECRET is not configured.",
			})
			return
		}

		given := c.GetHeader(HeaderAdminSecret)
		if given == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin secret required. Include the 'X-Admin-Secret' header.",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Invalid admin secret.",
			})
			return
		}

		c.Set(ContextKeyAdmin, true)
		c.Next()
	}
}

// IsAdmin reports whether the request passed RequireAdmin.
func IsAdmin(c *gin.Context) bool {
	v, exists := c.Get(ContextKeyAdmin)
	if !exists {
		return false
	}
	ok, _ := v.(bool)
	return ok
}
