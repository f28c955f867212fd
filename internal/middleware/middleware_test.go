package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellarhub/server/internal/service"
	"cellarhub/server/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var cookies = CookieConfig{SessionName: "cellar_session", SessionTTL: time.Hour, RememberName: "remember_me"}

type stubGuard struct {
	res  service.BootstrapResult
	err  error
	seen service.RequestContext
}

func (g *stubGuard) Bootstrap(_ context.Context, req service.RequestContext) (service.BootstrapResult, error) {
	g.seen = req
	return g.res, g.err
}

func newRouter(guard Bootstrapper, mode GuardMode, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	handlers := append([]gin.HandlerFunc{Session(guard, cookies, mode, zerolog.Nop())}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentSession(c).UserID})
	})
	r.Any("/*path", handlers...)
	return r
}

func TestSessionRedirectsPages(t *testing.T) {
	guard := &stubGuard{res: service.BootstrapResult{Status: service.StatusRedirect, RedirectTo: "/login.php?next=%2Fvault%2F42", ClearRemember: true}}
	r := newRouter(guard, ModePage)

	req := httptest.NewRequest(http.MethodPost, "/vault/42?x=1", nil)
	req.AddCookie(&http.Cookie{Name: "cellar_session", Value: "sid"})
	req.AddCookie(&http.Cookie{Name: "remember_me", Value: "sel:val"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login.php?next=%2Fvault%2F42", w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "remember_me=;")

	assert.Equal(t, "/vault/42?x=1", guard.seen.RawTarget)
	assert.Equal(t, "sid", guard.seen.SessionID)
	assert.Equal(t, "sel:val", guard.seen.RememberCookie)
}

func TestSessionRejectsAPI(t *testing.T) {
	guard := &stubGuard{res: service.BootstrapResult{Status: service.StatusRedirect, RedirectTo: "/login.php?next=%2F"}}
	r := newRouter(guard, ModeAPI)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/create_share.php", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"auth_required"}`, w.Body.String())
}

func TestSessionSetsCookiesOnPromotion(t *testing.T) {
	sess := &session.Session{ID: "new-id", UserID: 7}
	guard := &stubGuard{res: service.BootstrapResult{
		Session:  sess,
		Status:   service.StatusPromoted,
		Remember: &service.RememberCookie{Value: "sel2:val2", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	r := newRouter(guard, ModePage)

	req := httptest.NewRequest(http.MethodGet, "/vault/42", nil)
	req.AddCookie(&http.Cookie{Name: "cellar_session", Value: "old-id"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	set := strings.Join(w.Header().Values("Set-Cookie"), "\n")
	assert.Contains(t, set, "cellar_session=new-id")
	assert.Contains(t, set, "remember_me="+url.QueryEscape("sel2:val2"))
	assert.Contains(t, set, "HttpOnly")
	assert.JSONEq(t, `{"user":7}`, w.Body.String())
}

func TestSessionBootstrapError(t *testing.T) {
	r := newRouter(&stubGuard{err: errors.New("redis down")}, ModePage)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/vault", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireCSRF(t *testing.T) {
	sess := &session.Session{ID: "sid", UserID: 7, CSRF: "expected-token"}
	guard := &stubGuard{res: service.BootstrapResult{Session: sess, Status: service.StatusActive}}
	r := newRouter(guard, ModeAPI, RequireCSRF())

	post := func(body string, header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/create_share.php", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(&http.Cookie{Name: "cellar_session", Value: "sid"})
		if header != "" {
			req.Header.Set("X-CSRF-Token", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, post("csrf=expected-token", "").Code)
	assert.Equal(t, http.StatusOK, post("", "expected-token").Code)

	w := post("csrf=wrong", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"ok":false,"error":"csrf"}`, w.Body.String())
	assert.Equal(t, http.StatusForbidden, post("", "").Code)

	get := httptest.NewRecorder()
	r.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusOK, get.Code)
}

func TestRequireAdmin(t *testing.T) {
	for _, tc := range []struct {
		admin bool
		want  int
	}{{true, http.StatusOK}, {false, http.StatusForbidden}} {
		sess := &session.Session{ID: "sid", UserID: 7, IsAdmin: tc.admin}
		r := newRouter(&stubGuard{res: service.BootstrapResult{Session: sess, Status: service.StatusActive}}, ModePage, RequireAdmin())

		req := httptest.NewRequest(http.MethodGet, "/admin_share_edit.php", nil)
		req.AddCookie(&http.Cookie{Name: "cellar_session", Value: "sid"})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code)
	}
}

func TestRequestIDAndRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.Nop()), Recovery(zerolog.Nop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-Id", "fixed")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "fixed", w.Header().Get("X-Request-Id"))
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://cellar.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://cellar.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://cellar.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSIgnoresUnlistedOrigins(t *testing.T) {
	r := gin.New()
	r.Use(CORS(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
