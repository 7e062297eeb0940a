package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// dbNow is the current time at the precision PostgreSQL stores, so a
// returned record matches a later read of the same row.
func dbNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// withTx runs fn in a transaction, committing when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}
