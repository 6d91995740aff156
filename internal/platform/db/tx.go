package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type txKey struct{}

// Beginner starts a transaction. *pgxpool.Pool and pgx.Tx both satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithTx begins a transaction and returns a context carrying it. Repositories
// pick it up through TxFromContext.
func WithTx(ctx context.Context, b Beginner) (context.Context, pgx.Tx, error) {
	tx, err := b.Begin(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

// TxFromContext returns the transaction stored by WithTx, or nil.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// InTx runs fn inside a transaction and commits when fn returns nil. When
// ctx already carries a transaction fn joins it and the outer caller owns the
// commit.
func InTx(ctx context.Context, b Beginner, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	txCtx, tx, err := WithTx(ctx, b)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(txCtx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TxRunner is the write-path seam services depend on.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type beginnerRunner struct{ b Beginner }

// NewTxRunner wraps b (usually the pool) as a TxRunner.
func NewTxRunner(b Beginner) TxRunner {
	return beginnerRunner{b: b}
}

func (r beginnerRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return InTx(ctx, r.b, fn)
}
