package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"cellarhub/server/internal/config"
	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/models"
	"cellarhub/server/internal/repository"
	"cellarhub/server/internal/security"
	"cellarhub/server/internal/session"
)

type AuthService struct {
	pool     dbx.Pool
	remember *RememberMeService
	limiter  *RateLimiter
	sessions session.Store
	cfg      config.SecurityConfig
	log      zerolog.Logger
}

func NewAuthService(
	pool dbx.Pool,
	remember *RememberMeService,
	limiter *RateLimiter,
	sessions session.Store,
	cfg config.SecurityConfig,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		pool:     pool,
		remember: remember,
		limiter:  limiter,
		sessions: sessions,
		cfg:      cfg,
		log:      log,
	}
}

type LoginInput struct {
	Login    string
	Password string
	Remember bool
	// PresentedRemember is the remember-me cookie sent with the request.
	PresentedRemember string
	Client            ClientInfo
}

type LoginResult struct {
	User          models.User
	Remember      *RememberCookie
	ClearRemember bool
}

func LoginRateKey(clientIP string) string {
	return "login:" + clientIP
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (LoginResult, error) {
	input.Login = strings.TrimSpace(input.Login)
	if input.Login == "" || input.Password == "" {
		return LoginResult{}, ErrInvalidInput
	}

	if s.cfg.LoginRateLimit > 0 {
		decision, err := s.limiter.Allow(ctx, LoginRateKey(input.Client.IP), s.cfg.LoginRateLimit, s.cfg.LoginRateWindow)
		if err != nil {
			return LoginResult{}, storageFailure(err)
		}
		if !decision.Allowed {
			return LoginResult{}, &RateLimitedError{RetryAfter: decision.RetryAfter}
		}
	}

	users := repository.NewUserRepository(s.pool)
	user, err := users.FindByLogin(ctx, input.Login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, storageFailure(err)
	}

	ok, err := security.VerifyPassword(input.Password, user.PasswordHash)
	if err != nil || !ok {
		if err != nil {
			s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("stored password hash unreadable")
		}
		return LoginResult{}, ErrInvalidCredentials
	}

	if security.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, users, user.ID, input.Password)
	}

	result := LoginResult{User: user}
	if input.PresentedRemember != "" {
		if err := s.remember.Revoke(ctx, input.PresentedRemember); err != nil {
			s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("revoke remember-me token failed")
		}
	}
	if input.Remember {
		cookie, err := s.remember.Issue(ctx, s.pool, user.ID, input.Client)
		if err != nil {
			s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("issue remember-me token failed")
		} else {
			result.Remember = &cookie
		}
	}
	result.ClearRemember = result.Remember == nil && input.PresentedRemember != ""

	s.log.Info().Int64("user_id", user.ID).Bool("remember", result.Remember != nil).Msg("login succeeded")
	return result, nil
}

func (s *AuthService) upgradeHash(ctx context.Context, users *repository.UserRepository, userID int64, password string) {
	hash, err := security.HashPassword(password)
	if err == nil {
		err = users.UpdatePassword(ctx, userID, hash)
	}
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("password hash upgrade failed")
	}
}

// Logout destroys the session and revokes the presented remember-me token.
func (s *AuthService) Logout(ctx context.Context, sessionID string, rememberCookie string) error {
	var errs []error
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		errs = append(errs, err)
	}
	if err := s.remember.Revoke(ctx, rememberCookie); err != nil {
		errs = append(errs, fmt.Errorf("revoke remember-me: %w", err))
	}
	return errors.Join(errs...)
}
