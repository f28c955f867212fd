package service

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"cellarhub/server/internal/config"
	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/models"
	"cellarhub/server/internal/repository"
	"cellarhub/server/internal/security"
)

const ResetPath = "/reset_password.php"

// ResetNotifier delivers a reset link to the account owner.
type ResetNotifier interface {
	SendResetLink(ctx context.Context, user models.User, link string, expiresAt time.Time) error
}

// LogNotifier records that a link was issued. It never logs the link.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) SendResetLink(_ context.Context, user models.User, _ string, expiresAt time.Time) error {
	n.Log.Info().
		Int64("user_id", user.ID).
		Str("username", user.Username).
		Time("expires_at", expiresAt).
		Msg("password reset link issued")
	return nil
}

// ResetTicket proves that Validate accepted a token in this request.
type ResetTicket struct {
	ResetID  int64
	UserID   int64
	Username string
}

type PasswordResetFlow struct {
	pool      dbx.Pool
	notifier  ResetNotifier
	ttl       time.Duration
	minLength int
	timeout   time.Duration
	baseURL   string
	now       func() time.Time
	log       zerolog.Logger
}

func NewPasswordResetFlow(pool dbx.Pool, notifier ResetNotifier, cfg *config.AppConfig, log zerolog.Logger) *PasswordResetFlow {
	return &PasswordResetFlow{
		pool:      pool,
		notifier:  notifier,
		ttl:       cfg.Security.ResetTokenTTL,
		minLength: cfg.Security.MinPasswordLength,
		timeout:   cfg.Security.FlowTimeout,
		baseURL:   strings.TrimRight(cfg.Site.BaseURL, "/"),
		now:       time.Now,
		log:       log,
	}
}

func (f *PasswordResetFlow) WithClock(now func() time.Time) *PasswordResetFlow {
	f.now = now
	return f
}

// Request issues a reset token for the account owning email, invalidating
// any earlier ones. Unknown addresses return ("", nil) so callers cannot
// tell them apart.
func (f *PasswordResetFlow) Request(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidInput
	}

	user, err := repository.NewUserRepository(f.pool).FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return "", nil
	}
	if err != nil {
		return "", storageFailure(err)
	}

	raw, err := security.GenerateToken(32)
	if err != nil {
		return "", err
	}
	expires := f.now().Add(f.ttl)

	err = dbx.WithTx(ctx, f.pool, func(ctx context.Context, tx pgx.Tx) error {
		resets := repository.NewPasswordResetRepository(tx)
		if err := resets.InvalidateForUser(ctx, user.ID); err != nil {
			return err
		}
		return resets.Create(ctx, user.ID, security.HashToken(raw), expires)
	})
	if err != nil {
		f.log.Error().Err(err).Int64("user_id", user.ID).Msg("store password reset failed")
		return "", storageFailure(err)
	}

	link := f.baseURL + ResetPath + "?token=" + url.QueryEscape(raw)
	if err := f.notifier.SendResetLink(ctx, user, link, expires); err != nil {
		f.log.Warn().Err(err).Int64("user_id", user.ID).Msg("deliver password reset link failed")
	}
	return raw, nil
}

func (f *PasswordResetFlow) Validate(ctx context.Context, raw string) (ResetTicket, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ResetTicket{}, ErrMissingToken
	}

	hash := security.HashToken(raw)
	reset, err := repository.NewPasswordResetRepository(f.pool).FindByTokenHash(ctx, hash)
	if errors.Is(err, repository.ErrResetNotFound) {
		return ResetTicket{}, ErrTokenInvalid
	}
	if err != nil {
		f.log.Error().Err(err).Msg("lookup password reset failed")
		return ResetTicket{}, storageFailure(err)
	}
	if !security.TokenHashEqual(reset.TokenHash, hash) {
		return ResetTicket{}, ErrTokenInvalid
	}
	if !reset.Redeemable(f.now()) {
		return ResetTicket{}, ErrTokenExpiredOrUsed
	}

	return ResetTicket{ResetID: reset.ID, UserID: reset.UserID, Username: reset.Username}, nil
}

// Redeem sets the new password and consumes the reset in one transaction.
// The reset row is locked and checked again, so two concurrent redemptions
// of one ticket cannot both succeed.
func (f *PasswordResetFlow) Redeem(ctx context.Context, ticket ResetTicket, password string, confirm string) error {
	if ticket.ResetID == 0 {
		return ErrTokenInvalid
	}
	if utf8.RuneCountInString(password) < f.minLength {
		return ErrWeakPassword
	}
	if password != confirm {
		return ErrPasswordMismatch
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	err = dbx.WithTx(ctx, f.pool, func(ctx context.Context, tx pgx.Tx) error {
		resets := repository.NewPasswordResetRepository(tx)
		reset, err := resets.LockByID(ctx, ticket.ResetID)
		if err != nil {
			return err
		}
		if !reset.Redeemable(f.now()) {
			return ErrTokenExpiredOrUsed
		}
		if err := repository.NewUserRepository(tx).UpdatePassword(ctx, reset.UserID, hash); err != nil {
			return err
		}
		return resets.MarkUsed(ctx, reset.ID)
	})
	switch {
	case err == nil:
		f.log.Info().Int64("user_id", ticket.UserID).Msg("password reset redeemed")
		return nil
	case errors.Is(err, ErrTokenExpiredOrUsed):
		return err
	case errors.Is(err, repository.ErrResetNotFound):
		return ErrTokenInvalid
	default:
		f.log.Error().Err(err).Int64("user_id", ticket.UserID).Msg("redeem password reset failed")
		return storageFailure(err)
	}
}
