// Package dbx holds the small pgx abstractions shared by repositories and
// services: a query interface satisfied by pools and transactions, and a
// helper that runs a function inside one transaction.
package dbx

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx used by the repositories.
// *pgxpool.Pool, *pgxpool.Conn and pgx.Tx all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Pool is what services hold: plain queries plus transactions.
type Pool interface {
	DBTX
	Beginner
}

// WithTx begins a transaction, runs fn with it, then commits on success or
// rolls back on error or panic. Panics are rethrown.
//
// The rollback runs on a context detached from ctx cancellation, so a flow
// that hit its deadline still releases its locks before returning.
//
//	err := dbx.WithTx(ctx, pool, func(ctx context.Context, tx pgx.Tx) error {
//	    _, err := tx.Exec(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db Beginner, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return
		}
		err = tx.Commit(ctx)
	}()

	return fn(ctx, tx)
}

// Postgres error classes that are safe to retry once: serialization
// failure, deadlock, lock not available.
var transientCodes = map[string]struct{}{
	"40001": {},
	"40P01": {},
	"55P03": {},
}

// IsTransient reports whether err is a lock-wait or deadlock failure raised
// by the store.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	_, ok := transientCodes[pgErr.Code]
	return ok
}
