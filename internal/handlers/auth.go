package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cellarhub/server/internal/middleware"
	"cellarhub/server/internal/security"
	"cellarhub/server/internal/service"
	"cellarhub/server/internal/session"
)

type loginRequest struct {
	Login    string `form:"login" json:"login"`
	Password string `form:"password" json:"password"`
	Remember bool   `form:"remember" json:"remember"`
	Next     string `form:"next" json:"next"`
}

// postLoginTarget resolves where a user lands after signing in. The root
// path sends them home.
func (h HandlerSet) postLoginTarget(next string) string {
	target := security.SafeNext(next, h.cfg.Site.LoginPath)
	if target == "/" && h.cfg.Site.HomePath != "" {
		return h.cfg.Site.HomePath
	}
	return target
}

func (h HandlerSet) LoginPage(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	if sess.Authenticated() {
		c.Redirect(http.StatusSeeOther, h.postLoginTarget(c.Query("next")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"csrf": sess.CSRF,
		"next": security.SafeNext(c.Query("next"), h.cfg.Site.LoginPath),
	})
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.writeError(c, service.ErrInvalidInput)
		return
	}

	remember, _ := c.Cookie(h.cookies.RememberName)
	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Login:             req.Login,
		Password:          req.Password,
		Remember:          req.Remember,
		PresentedRemember: remember,
		Client:            service.ClientInfo{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()},
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	sess := middleware.CurrentSession(c)
	sess.Login(result.User.ID, result.User.Username, result.User.IsAdmin)
	if err := h.sessions.Regenerate(c.Request.Context(), sess); err != nil {
		h.writeError(c, err)
		return
	}
	h.cookies.SetSession(c, sess.ID)

	if result.Remember != nil {
		h.cookies.SetRemember(c, result.Remember.Value, result.Remember.ExpiresAt)
	} else if result.ClearRemember {
		h.cookies.ClearRemember(c)
	}

	c.Redirect(http.StatusFound, h.postLoginTarget(req.Next))
}

func (h HandlerSet) Logout(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	remember, _ := c.Cookie(h.cookies.RememberName)

	if err := h.auth.Logout(c.Request.Context(), sess.ID, remember); err != nil {
		h.log.Warn().Err(err).Str("session_id", sess.Fingerprint()).Msg("logout cleanup incomplete")
	}

	h.cookies.ClearSession(c)
	h.cookies.ClearRemember(c)
	c.Redirect(http.StatusSeeOther, h.cfg.Site.LoginPath)
}

func (h HandlerSet) Me(c *gin.Context) {
	sess := middleware.CurrentSession(c)
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"user_id":  sess.UserID,
		"username": sess.Username,
		"is_admin": sess.IsAdmin,
		"csrf":     sess.CSRF,
	})
}

// ForgotPassword answers the same way whether or not the address belongs to
// an account.
func (h HandlerSet) ForgotPassword(c *gin.Context) {
	email := c.PostForm("email")
	if _, err := h.resets.Request(c.Request.Context(), email); err != nil && !errors.Is(err, service.ErrInvalidInput) {
		h.log.Error().Err(err).Msg("password reset request failed")
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func resetToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	return c.PostForm("token")
}

func (h HandlerSet) ResetStatus(c *gin.Context) {
	ticket, err := h.resets.Validate(c.Request.Context(), resetToken(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "valid": true, "username": ticket.Username})
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	ctx := c.Request.Context()

	ticket, err := h.resets.Validate(ctx, resetToken(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	confirm, ok := c.GetPostForm("confirm_password")
	if !ok {
		confirm = c.PostForm("confirm")
	}
	if err := h.resets.Redeem(ctx, ticket, c.PostForm("password"), confirm); err != nil {
		h.writeError(c, err)
		return
	}

	h.autoLogin(c, ticket)
	c.JSON(http.StatusOK, gin.H{"ok": true, "redirect": h.postLoginTarget("/")})
}

// autoLogin signs the user in after a reset. Failures are logged only; the
// password change has already committed.
func (h HandlerSet) autoLogin(c *gin.Context, ticket service.ResetTicket) {
	ctx := c.Request.Context()

	sess, err := session.New(time.Now())
	if err != nil {
		h.log.Warn().Err(err).Int64("user_id", ticket.UserID).Msg("auto-login after reset failed")
		return
	}
	username := ticket.Username
	isAdmin := false
	if user, err := h.users.GetByID(ctx, ticket.UserID); err == nil {
		username, isAdmin = user.Username, user.IsAdmin
	}
	sess.Login(ticket.UserID, username, isAdmin)

	if err := h.sessions.Save(ctx, sess); err != nil {
		h.log.Warn().Err(err).Int64("user_id", ticket.UserID).Msg("auto-login after reset failed")
		return
	}
	if old, err := c.Cookie(h.cookies.SessionName); err == nil && old != "" {
		if err := h.sessions.Destroy(ctx, old); err != nil {
			h.log.Warn().Err(err).Msg("destroy pre-reset session failed")
		}
	}
	h.cookies.SetSession(c, sess.ID)
}
