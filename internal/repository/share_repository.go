package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/models"
)

var ErrShareNotFound = errors.New("share not found")

type ShareRepository struct {
	db dbx.DBTX
}

func NewShareRepository(db dbx.DBTX) *ShareRepository {
	return &ShareRepository{db: db}
}

func (r *ShareRepository) Create(ctx context.Context, share models.Share) (int64, error) {
	const query = `
		INSERT INTO public_shares (
			token, wine_id, user_id, title, excerpt, is_indexable, expires_at, status, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW()
		)
		RETURNING id
	`
	status := share.Status
	if status == "" {
		status = models.ShareStatusActive
	}

	var id int64
	if err := r.db.QueryRow(ctx, query,
		share.Token,
		share.WineID,
		share.UserID,
		share.Title,
		share.Excerpt,
		share.IsIndexable,
		share.ExpiresAt,
		status,
	).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *ShareRepository) SetPreviewURL(ctx context.Context, token string, previewURL string) error {
	const query = `UPDATE public_shares SET og_image_url = $2 WHERE token = $1`
	cmd, err := r.db.Exec(ctx, query, token, previewURL)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrShareNotFound
	}
	return nil
}

func (r *ShareRepository) GetByToken(ctx context.Context, token string) (models.Share, error) {
	const query = `
		SELECT id, token, wine_id, user_id, title, excerpt, is_indexable, expires_at, og_image_url, status, created_at
		FROM public_shares
		WHERE token = $1
	`
	var share models.Share
	if err := r.db.QueryRow(ctx, query, token).Scan(
		&share.ID,
		&share.Token,
		&share.WineID,
		&share.UserID,
		&share.Title,
		&share.Excerpt,
		&share.IsIndexable,
		&share.ExpiresAt,
		&share.OGImageURL,
		&share.Status,
		&share.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Share{}, ErrShareNotFound
		}
		return models.Share{}, err
	}
	return share, nil
}

// UpdateSettings changes the indexable flag and expiry in place. The token
// never changes.
func (r *ShareRepository) UpdateSettings(ctx context.Context, token string, indexable bool, expiresAt *time.Time) error {
	const query = `UPDATE public_shares SET is_indexable = $2, expires_at = $3 WHERE token = $1`
	cmd, err := r.db.Exec(ctx, query, token, indexable, expiresAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrShareNotFound
	}
	return nil
}
