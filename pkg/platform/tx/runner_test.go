package tx

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kiosk/pkg/domain-errors"
)

func TestMemoryRunner(t *testing.T) {
	t.Run("runs callback with deadline", func(t *testing.T) {
		r := NewMemoryRunner(time.Second)
		called := false
		err := r.RunInTx(context.Background(), func(txCtx context.Context) error {
			_, ok := txCtx.Deadline()
			assert.True(t, ok)
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
	})

	t.Run("cancelled context never reaches callback", func(t *testing.T) {
		r := NewMemoryRunner(time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := r.RunInTx(ctx, func(context.Context) error {
			t.Fatal("callback must not run")
			return nil
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("callback error is returned as-is", func(t *testing.T) {
		r := NewMemoryRunner(time.Second)
		boom := errors.New("boom")
		err := r.RunInTx(context.Background(), func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.False(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("deadline hit inside callback becomes timeout", func(t *testing.T) {
		r := NewMemoryRunner(10 * time.Millisecond)
		err := r.RunInTx(context.Background(), func(txCtx context.Context) error {
			<-txCtx.Done()
			return txCtx.Err()
		})
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})
}

func TestMemoryRunnerUndo(t *testing.T) {
	t.Run("failed callback undoes writes newest first", func(t *testing.T) {
		r := NewMemoryRunner(time.Second)
		var undone []string
		boom := errors.New("boom")
		err := r.RunInTx(context.Background(), func(txCtx context.Context) error {
			OnRollback(txCtx, func() { undone = append(undone, "order row") })
			OnRollback(txCtx, func() { undone = append(undone, "outbox entry") })
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"outbox entry", "order row"}, undone)
	})

	t.Run("committed callback keeps writes", func(t *testing.T) {
		r := NewMemoryRunner(time.Second)
		undone := false
		err := r.RunInTx(context.Background(), func(txCtx context.Context) error {
			OnRollback(txCtx, func() { undone = true })
			return nil
		})
		require.NoError(t, err)
		assert.False(t, undone)
	})

	t.Run("nested call joins the outer undo log", func(t *testing.T) {
		r := NewMemoryRunner(time.Second)
		var undone []string
		boom := errors.New("boom")
		err := r.RunInTx(context.Background(), func(outer context.Context) error {
			require.NoError(t, r.RunInTx(outer, func(inner context.Context) error {
				OnRollback(inner, func() { undone = append(undone, "patient row") })
				return nil
			}))
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"patient row"}, undone)
	})

	t.Run("panic undoes writes and propagates", func(t *testing.T) {
		r := NewMemoryRunner(time.Second)
		undone := false
		assert.Panics(t, func() {
			_ = r.RunInTx(context.Background(), func(txCtx context.Context) error {
				OnRollback(txCtx, func() { undone = true })
				panic("store bug")
			})
		})
		assert.True(t, undone)
	})

	t.Run("registration outside a transaction is ignored", func(t *testing.T) {
		assert.NotPanics(t, func() { OnRollback(context.Background(), func() { t.Fatal("must not run") }) })
	})
}

func TestExecFallsBackToDB(t *testing.T) {
	_, ok := From(context.Background())
	assert.False(t, ok)
	assert.Equal(t, context.Background(), WithTx(context.Background(), nil))
}

type traceKey struct{}

func TestDetach(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), traceKey{}, "req-1"))
	txCtx := WithTx(parent, &sql.Tx{})
	require.True(t, InTx(txCtx))

	detached := Detach(txCtx)
	cancel()

	_, ok := From(detached)
	assert.False(t, ok, "transaction is not carried over")
	assert.False(t, InTx(detached))
	assert.NoError(t, detached.Err(), "cancellation is not carried over")
	assert.Equal(t, "req-1", detached.Value(traceKey{}))

	err := NewMemoryRunner(time.Second).RunInTx(context.Background(), func(memCtx context.Context) error {
		assert.True(t, InTx(memCtx))
		inner := Detach(memCtx)
		assert.False(t, InTx(inner))
		OnRollback(inner, func() { t.Error("detached writes are not undone") })
		return errors.New("fail")
	})
	require.Error(t, err)
}
