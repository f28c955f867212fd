package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/models"
)

var ErrRememberTokenNotFound = errors.New("remember token not found")

type RememberTokenRepository struct {
	db dbx.DBTX
}

func NewRememberTokenRepository(db dbx.DBTX) *RememberTokenRepository {
	return &RememberTokenRepository{db: db}
}

func (r *RememberTokenRepository) Create(ctx context.Context, token models.RememberToken) error {
	const query = `
		INSERT INTO user_remember_tokens (
			user_id, selector, validator_hash, expires_at, ip, ua, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, NOW()
		)
	`
	_, err := r.db.Exec(ctx, query,
		token.UserID,
		token.Selector,
		token.ValidatorHash,
		token.ExpiresAt,
		token.IP,
		token.UserAgent,
	)
	return err
}

// Consume deletes the token for selector and returns it. Two callers racing
// on the same selector cannot both get the row back.
func (r *RememberTokenRepository) Consume(ctx context.Context, selector string) (models.RememberToken, error) {
	const query = `
		DELETE FROM user_remember_tokens
		WHERE selector = $1
		RETURNING id, user_id, selector, validator_hash, expires_at, ip, ua, created_at, last_used_at
	`
	var token models.RememberToken
	if err := r.db.QueryRow(ctx, query, selector).Scan(
		&token.ID,
		&token.UserID,
		&token.Selector,
		&token.ValidatorHash,
		&token.ExpiresAt,
		&token.IP,
		&token.UserAgent,
		&token.CreatedAt,
		&token.LastUsedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RememberToken{}, ErrRememberTokenNotFound
		}
		return models.RememberToken{}, err
	}
	return token, nil
}

func (r *RememberTokenRepository) DeleteBySelector(ctx context.Context, selector string) error {
	const query = `DELETE FROM user_remember_tokens WHERE selector = $1`
	cmd, err := r.db.Exec(ctx, query, selector)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRememberTokenNotFound
	}
	return nil
}

// PruneForUser keeps only the keepLatest newest tokens of a user.
func (r *RememberTokenRepository) PruneForUser(ctx context.Context, userID int64, keepLatest int) error {
	const query = `
		DELETE FROM user_remember_tokens
		WHERE id IN (
			SELECT id FROM user_remember_tokens
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			OFFSET $2
		)
	`
	_, err := r.db.Exec(ctx, query, userID, keepLatest)
	return err
}

func (r *RememberTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM user_remember_tokens WHERE expires_at <= $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
