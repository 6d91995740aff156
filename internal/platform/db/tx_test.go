package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
)

// fakeTx records Commit and Rollback calls; every other pgx.Tx method panics
// through the nil embedded interface.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx     *fakeTx
	begins int
	err    error
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.begins++
	return b.tx, nil
}

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
}

func TestInTx_Commits(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	var seen pgx.Tx
	err := InTx(context.Background(), b, func(ctx context.Context) error {
		seen = TxFromContext(ctx)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != b.tx {
		t.Error("expected fn to see the transaction in its context")
	}
	if !b.tx.committed {
		t.Error("expected commit")
	}
	if b.tx.rolledBack {
		t.Error("expected no rollback after commit")
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	want := errors.New("boom")
	err := InTx(context.Background(), b, func(ctx context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
	if b.tx.committed {
		t.Error("expected no commit")
	}
	if !b.tx.rolledBack {
		t.Error("expected rollback")
	}
}

func TestInTx_CommitError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	err := InTx(context.Background(), b, func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected commit error")
	}
	if !b.tx.rolledBack {
		t.Error("expected rollback after failed commit")
	}
}

func TestInTx_BeginError(t *testing.T) {
	b := &fakeBeginner{err: errors.New("pool closed")}
	called := false
	err := InTx(context.Background(), b, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected begin error")
	}
	if called {
		t.Error("fn must not run without a transaction")
	}
}

func TestInTx_JoinsOuterTransaction(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	runner := NewTxRunner(b)
	err := runner.InTx(context.Background(), func(ctx context.Context) error {
		return runner.InTx(ctx, func(ctx context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.begins != 1 {
		t.Errorf("expected 1 begin, got %d", b.begins)
	}
}
