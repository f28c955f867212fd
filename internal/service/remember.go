package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"cellarhub/server/internal/config"
	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/ids"
	"cellarhub/server/internal/models"
	"cellarhub/server/internal/repository"
	"cellarhub/server/internal/security"
)

// ClientInfo describes the requesting client.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// RememberCookie is a freshly issued persistent-login cookie value.
type RememberCookie struct {
	Value     string
	ExpiresAt time.Time
}

const maxUserAgentLength = 255

// RememberMeService issues and rotates persistent-login tokens. Cookie
// values have the form selector:validator.
type RememberMeService struct {
	pool       dbx.Pool
	ttl        time.Duration
	maxDevices int
	now        func() time.Time
	log        zerolog.Logger
}

func NewRememberMeService(pool dbx.Pool, cfg config.SecurityConfig, log zerolog.Logger) *RememberMeService {
	return &RememberMeService{
		pool:       pool,
		ttl:        cfg.RememberTTL,
		maxDevices: cfg.RememberMaxDevices,
		now:        time.Now,
		log:        log,
	}
}

func (s *RememberMeService) WithClock(now func() time.Time) *RememberMeService {
	s.now = now
	return s
}

// Issue stores a new token for userID using db, which may be a transaction.
func (s *RememberMeService) Issue(ctx context.Context, db dbx.DBTX, userID int64, client ClientInfo) (RememberCookie, error) {
	validator, err := security.GenerateToken(32)
	if err != nil {
		return RememberCookie{}, err
	}
	selector := ids.New()

	tokens := repository.NewRememberTokenRepository(db)
	if s.maxDevices > 0 {
		if err := tokens.PruneForUser(ctx, userID, s.maxDevices-1); err != nil {
			return RememberCookie{}, err
		}
	}

	expires := s.now().Add(s.ttl)
	if err := tokens.Create(ctx, models.RememberToken{
		UserID:        userID,
		Selector:      selector,
		ValidatorHash: security.HashToken(validator),
		ExpiresAt:     expires,
		IP:            client.IP,
		UserAgent:     truncate(client.UserAgent, maxUserAgentLength),
	}); err != nil {
		return RememberCookie{}, err
	}

	return RememberCookie{Value: selector + ":" + validator, ExpiresAt: expires}, nil
}

// ValidateAndRotate consumes the presented cookie and, when it is valid,
// issues its replacement in the same transaction. Every failure is reported
// as ok == false; a replayed or concurrently used cookie finds no row.
func (s *RememberMeService) ValidateAndRotate(ctx context.Context, cookie string, client ClientInfo) (int64, RememberCookie, bool) {
	selector, validator, ok := splitCookie(cookie)
	if !ok {
		return 0, RememberCookie{}, false
	}

	var (
		userID int64
		next   RememberCookie
		valid  bool
	)
	err := dbx.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		token, err := repository.NewRememberTokenRepository(tx).Consume(ctx, selector)
		if errors.Is(err, repository.ErrRememberTokenNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		// Expired and forged tokens stay deleted.
		if token.Expired(s.now()) || !security.TokenHashEqual(token.ValidatorHash, security.HashToken(validator)) {
			return nil
		}

		next, err = s.Issue(ctx, tx, token.UserID, client)
		if err != nil {
			return err
		}
		userID = token.UserID
		valid = true
		return nil
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("remember-me rotation failed")
		return 0, RememberCookie{}, false
	}
	if !valid {
		return 0, RememberCookie{}, false
	}
	return userID, next, true
}

// Revoke deletes the token behind cookie. Unknown cookies are ignored.
func (s *RememberMeService) Revoke(ctx context.Context, cookie string) error {
	selector, _, ok := splitCookie(cookie)
	if !ok {
		return nil
	}
	err := repository.NewRememberTokenRepository(s.pool).DeleteBySelector(ctx, selector)
	if err != nil && !errors.Is(err, repository.ErrRememberTokenNotFound) {
		return err
	}
	return nil
}

func splitCookie(cookie string) (string, string, bool) {
	selector, validator, found := strings.Cut(cookie, ":")
	if !found || selector == "" || validator == "" {
		return "", "", false
	}
	return selector, validator, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}
