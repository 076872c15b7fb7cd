package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor runs queries against either the pool or an open
	// transaction. *sqlx.DB and *sqlx.Tx both satisfy it.
	DBExecutor interface {
		sqlx.ExtContext
	}

	DB interface {
		DBExecutor

		Begin(ctx context.Context) (DBTransactor, error)
	}

	DBTransactor interface {
		DBExecutor

		Commit() error
		Rollback() error
	}
)

// Atomic runs fn inside a transaction; any error rolls every write back.
func Atomic(ctx context.Context, db DB, fn func(tx DBTransactor) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
