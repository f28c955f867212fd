package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type CookieConfig struct {
	SessionName  string
	SessionTTL   time.Duration
	RememberName string
	Secure       bool
}

func (cfg CookieConfig) set(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", cfg.Secure, true)
}

func (cfg CookieConfig) SetSession(c *gin.Context, id string) {
	cfg.set(c, cfg.SessionName, id, int(cfg.SessionTTL.Seconds()))
}

func (cfg CookieConfig) ClearSession(c *gin.Context) {
	cfg.set(c, cfg.SessionName, "", -1)
}

func (cfg CookieConfig) SetRemember(c *gin.Context, value string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		cfg.ClearRemember(c)
		return
	}
	cfg.set(c, cfg.RememberName, value, maxAge)
}

func (cfg CookieConfig) ClearRemember(c *gin.Context) {
	cfg.set(c, cfg.RememberName, "", -1)
}
