package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cellarhub/server/internal/middleware"
	"cellarhub/server/internal/service"
)

type adminShareRequest struct {
	Token     string  `form:"t" binding:"required,sharetoken"`
	Indexable *string `form:"is_indexable"`
	ExpiresAt string  `form:"expires_at"`
}

// indexable follows checkbox semantics: an absent field is off, and any
// value other than an explicit false is on.
func (r adminShareRequest) indexable() bool {
	if r.Indexable == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(*r.Indexable)) {
	case "", "0", "false", "off", "no":
		return false
	}
	return true
}

// AdminShareEdit changes the indexing flag and expiry of an existing share.
// The token is taken from the query string or the form body.
func (h HandlerSet) AdminShareEdit(c *gin.Context) {
	var req adminShareRequest
	if err := c.ShouldBind(&req); err != nil {
		h.writeError(c, service.ErrInvalidInput)
		return
	}
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		h.writeError(c, err)
		return
	}

	indexable := req.indexable()
	if err := h.shares.UpdateSettings(c.Request.Context(), req.Token, indexable, expiresAt); err != nil {
		h.writeError(c, err)
		return
	}

	h.log.Info().
		Int64("admin_id", middleware.CurrentSession(c).UserID).
		Bool("indexable", indexable).
		Msg("share settings updated")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
