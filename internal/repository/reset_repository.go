package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"cellarhub/server/internal/dbx"
	"cellarhub/server/internal/models"
)

var ErrResetNotFound = errors.New("password reset not found")

type PasswordResetRepository struct {
	db dbx.DBTX
}

func NewPasswordResetRepository(db dbx.DBTX) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	const query = `
		INSERT INTO password_resets (user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, FALSE, NOW())
	`
	_, err := r.db.Exec(ctx, query, userID, tokenHash, expiresAt)
	return err
}

// InvalidateForUser marks every outstanding reset of the user as used.
func (r *PasswordResetRepository) InvalidateForUser(ctx context.Context, userID int64) error {
	const query = `UPDATE password_resets SET used = TRUE WHERE user_id = $1 AND used = FALSE`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

func (r *PasswordResetRepository) FindByTokenHash(ctx context.Context, tokenHash string) (models.PasswordReset, error) {
	const query = `
		SELECT pr.id, pr.user_id, u.username, pr.token_hash, pr.expires_at, pr.used, pr.created_at
		FROM password_resets pr
		JOIN users u ON u.id = pr.user_id
		WHERE pr.token_hash = $1
	`
	var reset models.PasswordReset
	if err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.Username,
		&reset.TokenHash,
		&reset.ExpiresAt,
		&reset.Used,
		&reset.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PasswordReset{}, ErrResetNotFound
		}
		return models.PasswordReset{}, err
	}
	return reset, nil
}

// LockByID reads a reset row and holds a row lock until the transaction ends.
func (r *PasswordResetRepository) LockByID(ctx context.Context, id int64) (models.PasswordReset, error) {
	const query = `
		SELECT id, user_id, token_hash, expires_at, used, created_at
		FROM password_resets
		WHERE id = $1
		FOR UPDATE
	`
	var reset models.PasswordReset
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.TokenHash,
		&reset.ExpiresAt,
		&reset.Used,
		&reset.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PasswordReset{}, ErrResetNotFound
		}
		return models.PasswordReset{}, err
	}
	return reset, nil
}

func (r *PasswordResetRepository) MarkUsed(ctx context.Context, id int64) error {
	const query = `UPDATE password_resets SET used = TRUE WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrResetNotFound
	}
	return nil
}
