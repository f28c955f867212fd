package repository

import (
	"context"

	"cellarhub/server/internal/dbx"
)

type WineRepository struct {
	db dbx.DBTX
}

func NewWineRepository(db dbx.DBTX) *WineRepository {
	return &WineRepository{db: db}
}

func (r *WineRepository) Exists(ctx context.Context, id int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM wines WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
