package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"cellarhub/server/internal/middleware"
	"cellarhub/server/internal/service"
)

type createShareRequest struct {
	WineID    int64  `form:"wine_id" json:"wine_id" binding:"required,gt=0"`
	Title     string `form:"title" json:"title" binding:"max=200"`
	Excerpt   string `form:"excerpt" json:"excerpt" binding:"max=1000"`
	Indexable *bool  `form:"is_indexable" json:"is_indexable"`
	ExpiresAt string `form:"expires_at" json:"expires_at"`
}

// indexable reports the requested flag. Shares are indexable unless the
// client says otherwise.
func (r createShareRequest) indexable() bool {
	return r.Indexable == nil || *r.Indexable
}

type shareQuery struct {
	Token string `form:"t" binding:"required,sharetoken"`
}

// parseExpiry accepts RFC 3339 timestamps or bare dates. Empty means the
// share never expires.
func parseExpiry(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, service.ErrInvalidInput
}

func (h HandlerSet) CreateShare(c *gin.Context) {
	var req createShareRequest
	if err := c.ShouldBind(&req); err != nil {
		h.writeError(c, service.ErrInvalidInput)
		return
	}
	expiresAt, err := parseExpiry(req.ExpiresAt)
	if err != nil {
		h.writeError(c, err)
		return
	}

	sess := middleware.CurrentSession(c)
	result, err := h.shares.CreateShare(c.Request.Context(), service.CreateShareInput{
		UserID:    sess.UserID,
		ClientIP:  c.ClientIP(),
		WineID:    req.WineID,
		Title:     req.Title,
		Excerpt:   req.Excerpt,
		Indexable: req.indexable(),
		ExpiresAt: expiresAt,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"share_url": result.ShareURL,
		"og_image":  result.PreviewURL,
	})
}

func (h HandlerSet) ShareView(c *gin.Context) {
	var q shareQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.writeError(c, service.ErrNotFound)
		return
	}
	share, err := h.shares.Lookup(c.Request.Context(), q.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if !share.IsIndexable {
		c.Header("X-Robots-Tag", "noindex, nofollow")
	}
	resp := gin.H{
		"ok":        true,
		"wine_id":   share.WineID,
		"title":     share.Title,
		"excerpt":   share.Excerpt,
		"indexable": share.IsIndexable,
		"share_url": h.shares.ShareURL(share.Token),
		"og_image":  h.shares.PreviewURL(share.Token),
	}
	if share.ExpiresAt != nil {
		resp["expires_at"] = share.ExpiresAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) SharePreview(c *gin.Context) {
	var q shareQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.writeError(c, service.ErrNotFound)
		return
	}
	location, err := h.shares.PreviewLocation(c.Request.Context(), q.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Redirect(http.StatusFound, location)
}
