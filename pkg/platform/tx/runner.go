package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dErrors "kiosk/pkg/domain-errors"
	"kiosk/pkg/platform/sentinel"
)

// DefaultTimeout bounds a transaction when the caller's context carries no deadline.
const DefaultTimeout = 5 * time.Second

// Runner provides the transactional boundary used by services. Stores reached
// through the callback's ctx join the transaction.
type Runner interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
}

// bound applies the timeout and rejects already-cancelled contexts.
func bound(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// MemoryRunner bounds in-memory work with the same timeout and cancellation
// rules as PostgresRunner. It takes no lock; in-memory stores serialize
// themselves and per-key ordering is the caller's concern. Writes registered
// with OnRollback are undone when the callback fails or panics.
type MemoryRunner struct {
	timeout time.Duration
}

func NewMemoryRunner(timeout time.Duration) *MemoryRunner {
	return &MemoryRunner{timeout: timeout}
}

func (r *MemoryRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) (err error) {
	if _, ok := ctx.Value(undoKey{}).(*undoLog); ok {
		// Nested calls join the outer transaction and its undo log.
		return fn(ctx)
	}
	ctx, cancel, err := bound(ctx, r.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	undo := &undoLog{}
	defer func() {
		if p := recover(); p != nil {
			undo.rollback()
			panic(p)
		}
		if err != nil {
			undo.rollback()
		}
	}()

	if err = fn(context.WithValue(ctx, undoKey{}, undo)); err != nil {
		return timeoutOr(ctx, err)
	}
	return nil
}

// PostgresRunner opens a *sql.Tx per call and binds it to the callback context.
type PostgresRunner struct {
	db        *sql.DB
	timeout   time.Duration
	opts      *sql.TxOptions
	retryable func(error) bool
}

// PostgresOption configures a PostgresRunner.
type PostgresOption func(*PostgresRunner)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) PostgresOption {
	return func(r *PostgresRunner) {
		r.timeout = d
	}
}

// WithIsolation sets the isolation level of every transaction.
func WithIsolation(level sql.IsolationLevel) PostgresOption {
	return func(r *PostgresRunner) {
		r.opts = &sql.TxOptions{Isolation: level}
	}
}

// WithRetryable marks errors for which the whole transaction may be retried.
// Matching errors are returned wrapped with sentinel.ErrSerialization.
func WithRetryable(fn func(error) bool) PostgresOption {
	return func(r *PostgresRunner) {
		r.retryable = fn
	}
}

func NewPostgresRunner(db *sql.DB, opts ...PostgresOption) *PostgresRunner {
	r := &PostgresRunner{db: db, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *PostgresRunner) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) (err error) {
	if _, ok := From(ctx); ok {
		// Already inside a transaction; nested calls join it.
		return fn(ctx)
	}
	ctx, cancel, err := bound(ctx, r.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	sqlTx, err := r.db.BeginTx(ctx, r.opts)
	if err != nil {
		return timeoutOr(ctx, fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(WithTx(ctx, sqlTx)); err != nil {
		return r.classify(ctx, err)
	}
	if err = sqlTx.Commit(); err != nil {
		return r.classify(ctx, fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

func (r *PostgresRunner) classify(ctx context.Context, err error) error {
	if r.retryable != nil && !errors.Is(err, sentinel.ErrSerialization) && r.retryable(err) {
		return fmt.Errorf("%w: %w", sentinel.ErrSerialization, err)
	}
	return timeoutOr(ctx, err)
}

// timeoutOr converts errors caused by the transaction deadline into CodeTimeout
// unless they already carry a domain code.
func timeoutOr(ctx context.Context, err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction timed out")
	}
	return err
}
