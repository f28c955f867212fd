package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cellarhub/server/internal/config"
	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/middleware"
	"cellarhub/server/internal/repository"
	"cellarhub/server/internal/service"
	"cellarhub/server/internal/session"
)

const (
	logoutPath      = "/logout.php"
	forgotPath      = "/forgot_password.php"
	createSharePath = "/api/create_share.php"
	adminSharePath  = "/admin_share_edit.php"
)

// Database is the postgres handle the handlers need: transactions plus a
// liveness probe.
type Database interface {
	dbx.Pool
	Ping(ctx context.Context) error
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	db       Database
	cache    *redis.Client
	cookies  middleware.CookieConfig
	sessions session.Store
	users    *repository.UserRepository
	guard    *service.SessionGuard
	auth     *service.AuthService
	resets   *service.PasswordResetFlow
	shares   *service.ShareService
}

// NewHandlerSet wires the services behind the HTTP surface. tasks and
// previews may be nil; share previews then fall back to the default image.
func NewHandlerSet(
	log zerolog.Logger,
	db Database,
	cache *redis.Client,
	tasks service.TaskEnqueuer,
	previews service.PreviewStore,
	cfg *config.AppConfig,
) HandlerSet {
	registerValidators()

	sessions := session.NewRedisStore(cache, cfg.Security.SessionTTL)
	limiter := service.NewRateLimiter(db, log)
	remember := service.NewRememberMeService(db, cfg.Security, log)
	users := repository.NewUserRepository(db)

	return HandlerSet{
		log:   log,
		cfg:   cfg,
		db:    db,
		cache: cache,
		cookies: middleware.CookieConfig{
			SessionName:  cfg.Security.SessionCookie,
			SessionTTL:   cfg.Security.SessionTTL,
			RememberName: cfg.Security.RememberCookie,
			Secure:       cfg.Security.CookieSecure,
		},
		sessions: sessions,
		users:    users,
		guard:    service.NewSessionGuard(sessions, remember, users, cfg.Site.LoginPath, cfg.Site.PublicPaths, log),
		auth:     service.NewAuthService(db, remember, limiter, sessions, cfg.Security, log),
		resets:   service.NewPasswordResetFlow(db, service.LogNotifier{Log: log}, cfg, log),
		shares:   service.NewShareService(db, limiter, tasks, previews, cfg, log),
	}
}

func (h HandlerSet) Register(engine *gin.Engine) {
	page := middleware.Session(h.guard, h.cookies, middleware.ModePage, h.log)
	api := middleware.Session(h.guard, h.cookies, middleware.ModeAPI, h.log)
	csrf := middleware.RequireCSRF()

	engine.GET("/api/healthz", h.Health)

	engine.GET(h.cfg.Site.LoginPath, page, h.LoginPage)
	engine.POST(h.cfg.Site.LoginPath, page, csrf, h.Login)
	engine.POST(logoutPath, page, csrf, h.Logout)

	engine.POST(forgotPath, h.ForgotPassword)
	engine.GET(service.ResetPath, h.ResetStatus)
	engine.POST(service.ResetPath, h.ResetPassword)

	engine.POST(createSharePath, api, csrf, h.CreateShare)
	engine.GET(h.cfg.Share.SharePath, h.ShareView)
	engine.GET(h.cfg.Share.PreviewPath, h.SharePreview)
	engine.POST(adminSharePath, page, middleware.RequireAdmin(), csrf, h.AdminShareEdit)

	engine.GET("/api/me", api, h.Me)

	engine.NoRoute(page, func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not_found"})
	})
}
