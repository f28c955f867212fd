package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"cellarhub/server/internal/models"
	"cellarhub/server/internal/security"
	"cellarhub/server/internal/session"
)

// UserLookup resolves identity details for a user id.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
}

// RememberValidator consumes a persistent-login cookie.
type RememberValidator interface {
	ValidateAndRotate(ctx context.Context, cookie string, client ClientInfo) (int64, RememberCookie, bool)
}

// RequestContext is everything the guard needs to know about one request.
type RequestContext struct {
	Method         string
	Path           string
	RawTarget      string
	ClientIP       string
	UserAgent      string
	SessionID      string
	RememberCookie string
}

type BootstrapStatus int

const (
	StatusActive BootstrapStatus = iota
	StatusPromoted
	StatusPublic
	StatusRedirect
)

func (s BootstrapStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPromoted:
		return "promoted"
	case StatusPublic:
		return "public"
	case StatusRedirect:
		return "redirect"
	}
	return "unknown"
}

type BootstrapResult struct {
	Session    *session.Session
	Status     BootstrapStatus
	RedirectTo string
	// Remember is set when the presented cookie was rotated.
	Remember      *RememberCookie
	ClearRemember bool
}

type SessionGuard struct {
	sessions    session.Store
	remember    RememberValidator
	users       UserLookup
	loginPath   string
	publicPaths map[string]struct{}
	now         func() time.Time
	log         zerolog.Logger
}

func NewSessionGuard(
	sessions session.Store,
	remember RememberValidator,
	users UserLookup,
	loginPath string,
	publicPaths []string,
	log zerolog.Logger,
) *SessionGuard {
	public := map[string]struct{}{strings.ToLower(loginPath): {}}
	for _, p := range publicPaths {
		public[strings.ToLower(p)] = struct{}{}
	}
	return &SessionGuard{
		sessions:    sessions,
		remember:    remember,
		users:       users,
		loginPath:   loginPath,
		publicPaths: public,
		now:         time.Now,
		log:         log,
	}
}

func (g *SessionGuard) IsPublic(path string) bool {
	_, ok := g.publicPaths[strings.ToLower(path)]
	return ok
}

// Bootstrap loads or creates the session, promotes a remember-me cookie when
// the session is anonymous, and decides whether the request may proceed.
func (g *SessionGuard) Bootstrap(ctx context.Context, req RequestContext) (BootstrapResult, error) {
	sess, err := g.sessions.Load(ctx, req.SessionID)
	if errors.Is(err, session.ErrNotFound) {
		sess, err = session.New(g.now())
	}
	if err != nil {
		return BootstrapResult{}, err
	}

	result := BootstrapResult{Session: sess, Status: StatusActive}
	if !sess.Authenticated() && req.RememberCookie != "" {
		g.promote(ctx, req, &result)
	}

	switch {
	case sess.Authenticated():
		if err := g.sessions.Save(ctx, sess); err != nil {
			return BootstrapResult{}, err
		}
	case g.IsPublic(req.Path):
		result.Status = StatusPublic
		if err := g.sessions.Save(ctx, sess); err != nil {
			return BootstrapResult{}, err
		}
	default:
		result.Status = StatusRedirect
		result.RedirectTo = security.LoginRedirect(g.loginPath, security.SafeNext(req.RawTarget, g.loginPath))
	}

	g.log.Debug().
		Str("session_id", sess.Fingerprint()).
		Str("user_id", userIDField(sess)).
		Str("status", result.Status.String()).
		Str("path", req.Path).
		Msg("session bootstrap")

	return result, nil
}

func (g *SessionGuard) promote(ctx context.Context, req RequestContext, result *BootstrapResult) {
	userID, next, ok := g.remember.ValidateAndRotate(ctx, req.RememberCookie, ClientInfo{IP: req.ClientIP, UserAgent: req.UserAgent})
	if !ok {
		result.ClearRemember = true
		return
	}

	sess := result.Session
	username, isAdmin := "User", false
	if user, err := g.users.GetByID(ctx, userID); err == nil {
		username, isAdmin = user.Username, user.IsAdmin
	} else {
		g.log.Warn().Err(err).Int64("user_id", userID).Msg("identity lookup after remember-me failed")
	}
	sess.Login(userID, username, isAdmin)

	if err := g.sessions.Regenerate(ctx, sess); err != nil {
		// The rotated cookie is still handed out; the session stays anonymous.
		g.log.Error().Err(err).Msg("regenerate session after remember-me failed")
		sess.Login(0, "", false)
		result.Remember = &next
		return
	}

	result.Status = StatusPromoted
	result.Remember = &next
}

func userIDField(sess *session.Session) string {
	if !sess.Authenticated() {
		return "none"
	}
	return strconv.FormatInt(sess.UserID, 10)
}
