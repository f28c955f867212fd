package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"cellarhub/server/internal/service"
	"cellarhub/server/internal/session"
)

const sessionKey = "session"

// GuardMode selects how an unauthenticated request is turned away.
type GuardMode int

const (
	// ModePage answers with a 303 redirect to the login page.
	ModePage GuardMode = iota
	// ModeAPI answers with 401 and a JSON error.
	ModeAPI
)

type Bootstrapper interface {
	Bootstrap(ctx context.Context, req service.RequestContext) (service.BootstrapResult, error)
}

// Session runs the session guard in front of a route and stores the
// resulting session in the gin context.
func Session(guard Bootstrapper, cookies CookieConfig, mode GuardMode, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, _ := c.Cookie(cookies.SessionName)
		remember, _ := c.Cookie(cookies.RememberName)

		res, err := guard.Bootstrap(c.Request.Context(), service.RequestContext{
			Method:         c.Request.Method,
			Path:           c.Request.URL.Path,
			RawTarget:      c.Request.RequestURI,
			ClientIP:       c.ClientIP(),
			UserAgent:      c.Request.UserAgent(),
			SessionID:      sessionID,
			RememberCookie: remember,
		})
		if err != nil {
			log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("session bootstrap failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "server_error"})
			return
		}

		if res.Remember != nil {
			cookies.SetRemember(c, res.Remember.Value, res.Remember.ExpiresAt)
		} else if res.ClearRemember {
			cookies.ClearRemember(c)
		}

		if res.Status == service.StatusRedirect {
			if mode == ModeAPI {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "auth_required"})
				return
			}
			c.Redirect(http.StatusSeeOther, res.RedirectTo)
			c.Abort()
			return
		}

		if res.Session.ID != sessionID {
			cookies.SetSession(c, res.Session.ID)
		}
		c.Set(sessionKey, res.Session)
		c.Next()
	}
}

// CurrentSession returns the session stored by Session, or nil.
func CurrentSession(c *gin.Context) *session.Session {
	value, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	sess, _ := value.(*session.Session)
	return sess
}
