package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"cellarhub/server/internal/config"
	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/models"
	"cellarhub/server/internal/queue"
	"cellarhub/server/internal/repository"
	"cellarhub/server/internal/security"
)

const (
	maxTitleLength   = 200
	maxExcerptLength = 1000
)

// TaskEnqueuer hands background work to the worker.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task queue.Task) error
}

// PreviewStore resolves rendered preview images.
type PreviewStore interface {
	PreviewURL(ctx context.Context, token string) (string, bool, error)
}

type CreateShareInput struct {
	UserID    int64
	ClientIP  string
	WineID    int64
	Title     string
	Excerpt   string
	Indexable bool
	ExpiresAt *time.Time
}

type ShareResult struct {
	Token      string
	ShareURL   string
	PreviewURL string
}

type ShareService struct {
	pool     dbx.Pool
	limiter  *RateLimiter
	tasks    TaskEnqueuer
	previews PreviewStore
	cfg      config.ShareConfig
	baseURL  string
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

func NewShareService(
	pool dbx.Pool,
	limiter *RateLimiter,
	tasks TaskEnqueuer,
	previews PreviewStore,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *ShareService {
	return &ShareService{
		pool:     pool,
		limiter:  limiter,
		tasks:    tasks,
		previews: previews,
		cfg:      cfg.Share,
		baseURL:  strings.TrimRight(cfg.Site.BaseURL, "/"),
		timeout:  cfg.Security.FlowTimeout,
		now:      time.Now,
		log:      log,
	}
}

func (s *ShareService) WithClock(now func() time.Time) *ShareService {
	s.now = now
	return s
}

// ShareRateKey scopes share admission to one user behind one address.
func ShareRateKey(userID int64, clientIP string) string {
	return fmt.Sprintf("share:%d|%s", userID, clientIP)
}

func (s *ShareService) ShareURL(token string) string {
	return s.baseURL + s.cfg.SharePath + "?t=" + url.QueryEscape(token)
}

func (s *ShareService) PreviewURL(token string) string {
	return s.baseURL + s.cfg.PreviewPath + "?t=" + url.QueryEscape(token)
}

// CreateShare mints a public share token. The rate-limit increment and the
// share rows commit or roll back together, so a failed creation never uses
// up an admission slot.
func (s *ShareService) CreateShare(ctx context.Context, in CreateShareInput) (ShareResult, error) {
	if in.UserID <= 0 {
		return ShareResult{}, ErrAuthRequired
	}
	if in.WineID <= 0 {
		return ShareResult{}, ErrInvalidInput
	}
	if utf8.RuneCountInString(in.Title) > maxTitleLength || utf8.RuneCountInString(in.Excerpt) > maxExcerptLength {
		return ShareResult{}, ErrInvalidInput
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	exists, err := repository.NewWineRepository(s.pool).Exists(ctx, in.WineID)
	if err != nil {
		s.log.Error().Err(err).Int64("wine_id", in.WineID).Msg("wine lookup failed")
		return ShareResult{}, storageFailure(err)
	}
	if !exists {
		return ShareResult{}, ErrInvalidItem
	}

	result, err := s.createOnce(ctx, in)
	if err != nil && dbx.IsTransient(err) {
		s.log.Warn().Err(err).Int64("user_id", in.UserID).Msg("share creation hit lock contention, retrying")
		result, err = s.createOnce(ctx, in)
	}
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			return ShareResult{}, err
		}
		s.log.Error().Err(err).Int64("user_id", in.UserID).Int64("wine_id", in.WineID).Msg("share creation rolled back")
		return ShareResult{}, storageFailure(err)
	}

	if s.tasks != nil {
		if err := s.tasks.Enqueue(ctx, queue.Task{Type: queue.TaskSharePreview, Token: result.Token}); err != nil {
			s.log.Warn().Err(err).Msg("enqueue share preview failed")
		}
	}

	s.log.Info().Int64("user_id", in.UserID).Int64("wine_id", in.WineID).Msg("share created")
	return result, nil
}

func (s *ShareService) createOnce(ctx context.Context, in CreateShareInput) (ShareResult, error) {
	var result ShareResult
	err := dbx.WithTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		decision, err := s.limiter.CheckAndIncrement(ctx, tx, ShareRateKey(in.UserID, in.ClientIP), s.cfg.RateLimit, s.cfg.RateWindow)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return &RateLimitedError{RetryAfter: decision.RetryAfter}
		}

		token, err := security.GenerateToken(s.cfg.TokenBytes)
		if err != nil {
			return err
		}

		shares := repository.NewShareRepository(tx)
		if _, err := shares.Create(ctx, models.Share{
			Token:       token,
			WineID:      in.WineID,
			UserID:      in.UserID,
			Title:       optional(in.Title),
			Excerpt:     optional(in.Excerpt),
			IsIndexable: in.Indexable,
			ExpiresAt:   in.ExpiresAt,
			Status:      models.ShareStatusActive,
		}); err != nil {
			return fmt.Errorf("insert share: %w", err)
		}

		preview := s.PreviewURL(token)
		if err := shares.SetPreviewURL(ctx, token, preview); err != nil {
			return fmt.Errorf("set preview url: %w", err)
		}

		result = ShareResult{Token: token, ShareURL: s.ShareURL(token), PreviewURL: preview}
		return nil
	})
	return result, err
}

// Lookup returns a publicly visible share.
func (s *ShareService) Lookup(ctx context.Context, token string) (models.Share, error) {
	if !security.ValidShareToken(token) {
		return models.Share{}, ErrNotFound
	}
	share, err := repository.NewShareRepository(s.pool).GetByToken(ctx, token)
	if errors.Is(err, repository.ErrShareNotFound) {
		return models.Share{}, ErrNotFound
	}
	if err != nil {
		return models.Share{}, storageFailure(err)
	}
	if !share.Visible(s.now()) {
		return models.Share{}, ErrNotFound
	}
	return share, nil
}

func (s *ShareService) UpdateSettings(ctx context.Context, token string, indexable bool, expiresAt *time.Time) error {
	if !security.ValidShareToken(token) {
		return ErrNotFound
	}
	err := repository.NewShareRepository(s.pool).UpdateSettings(ctx, token, indexable, expiresAt)
	if errors.Is(err, repository.ErrShareNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storageFailure(err)
	}
	return nil
}

// PreviewLocation is where a preview request for token should be sent. An
// unrendered preview is queued again and the default image is used.
func (s *ShareService) PreviewLocation(ctx context.Context, token string) (string, error) {
	if _, err := s.Lookup(ctx, token); err != nil {
		return "", err
	}
	if s.previews != nil {
		location, ok, err := s.previews.PreviewURL(ctx, token)
		if err != nil {
			s.log.Warn().Err(err).Msg("preview lookup failed")
		}
		if ok {
			return location, nil
		}
	}
	if s.tasks != nil {
		if err := s.tasks.Enqueue(ctx, queue.Task{Type: queue.TaskSharePreview, Token: token}); err != nil {
			s.log.Warn().Err(err).Msg("enqueue share preview failed")
		}
	}
	return s.cfg.DefaultPreviewURL, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
