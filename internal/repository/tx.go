package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey struct{}

// Transactor runs a function inside a single database transaction.
type Transactor struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewTransactor constructs a Transactor. A positive lockTimeout is applied
// with SET LOCAL so a transaction never waits on a row lock longer than that.
func NewTransactor(db *pgxpool.Pool, lockTimeout time.Duration) *Transactor {
	return &Transactor{db: db, lockTimeout: lockTimeout}
}

// WithTx begins a transaction, stores it in the context passed to fn and
// commits when fn returns nil. Any error rolls everything back. Nested
// calls reuse the outer transaction.
func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := t.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if t.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", t.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		// Rollback must run even if ctx was cancelled mid-transaction.
		_ = tx.Rollback(context.Background())
		return classifyTxError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classifyTxError(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func classifyTxError(err error) error {
	if errors.Is(err, ErrLockTimeout) {
		return err
	}
	if isLockFailure(err) {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return err
}
