package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cellarhub/server/internal/security"
)

const (
	csrfField  = "csrf"
	csrfHeader = "X-CSRF-Token"
)

// RequireCSRF rejects state-changing requests whose anti-forgery token does
// not match the session's. It must run after Session.
func RequireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		sess := CurrentSession(c)
		token := c.GetHeader(csrfHeader)
		if token == "" {
			token = c.PostForm(csrfField)
		}
		if sess == nil || !security.SecureCompare(sess.CSRF, token) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": "csrf"})
			return
		}
		c.Next()
	}
}
