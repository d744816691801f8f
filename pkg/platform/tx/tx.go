// Package tx carries an open *sql.Tx through a context so stores invoked inside a
// RunInTx callback join the caller's transaction instead of opening their own.
package tx

import (
	"context"
	"database/sql"
	"sync"
)

type (
	ctxKey  struct{}
	undoKey struct{}
)

// undoLog collects compensations for writes made by in-memory stores inside a
// MemoryRunner transaction. They run newest first when the callback fails.
type undoLog struct {
	mu  sync.Mutex
	fns []func()
}

func (l *undoLog) push(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
}

func (l *undoLog) rollback() {
	l.mu.Lock()
	fns := l.fns
	l.fns = nil
	l.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// OnRollback registers fn to undo an in-memory write if the MemoryRunner
// transaction carried by ctx fails. Outside such a transaction it is a no-op;
// SQL stores rely on the database rollback instead.
func OnRollback(ctx context.Context, fn func()) {
	if l, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		l.push(fn)
	}
}

// Detach returns a context that keeps ctx's values but is not bound to its
// transaction, undo log or cancellation. Work shared between callers runs on it.
func Detach(ctx context.Context) context.Context {
	ctx = context.WithoutCancel(ctx)
	ctx = context.WithValue(ctx, ctxKey{}, nil)
	return context.WithValue(ctx, undoKey{}, nil)
}

// InTx reports whether ctx carries a SQL or in-memory transaction.
func InTx(ctx context.Context) bool {
	if _, ok := From(ctx); ok {
		return true
	}
	_, ok := ctx.Value(undoKey{}).(*undoLog)
	return ok
}

// Executor is the subset of *sql.DB and *sql.Tx used by stores.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx stores a SQL transaction in ctx.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From extracts a SQL transaction from ctx if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*sql.Tx)
	return tx, ok
}

// Exec returns the transaction bound to ctx, falling back to db.
func Exec(ctx context.Context, db *sql.DB) Executor {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}
