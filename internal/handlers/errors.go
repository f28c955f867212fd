package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"cellarhub/server/internal/service"
)

// writeError maps a service error onto its wire code. Internal detail is
// logged and never sent to the client.
func (h HandlerSet) writeError(c *gin.Context, err error) {
	var limited *service.RateLimitedError
	switch {
	case errors.As(err, &limited):
		c.Header("Retry-After", strconv.Itoa(limited.RetryAfterSeconds()))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"ok":          false,
			"error":       "rate_limited",
			"retry_after": limited.RetryAfterSeconds(),
		})
	case errors.Is(err, service.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "auth_required"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid_credentials"})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_input"})
	case errors.Is(err, service.ErrInvalidItem):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_item"})
	case errors.Is(err, service.ErrMissingToken):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing_token"})
	case errors.Is(err, service.ErrTokenInvalid), errors.Is(err, service.ErrTokenExpiredOrUsed):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "token_invalid_or_expired"})
	case errors.Is(err, service.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "weak_credentials"})
	case errors.Is(err, service.ErrPasswordMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_input", "reason": "mismatch"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not_found"})
	case errors.Is(err, service.ErrStorage):
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request rolled back")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage_failure"})
	default:
		h.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
	}
}
