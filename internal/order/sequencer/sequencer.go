// Package sequencer hands out per-service, per-day queue numbers.
//
// Reserve returns the next number for a key together with a release func.
// The caller persists the order before calling release; numbers stay gapless
// because nothing else can read the key's maximum in between.
package sequencer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kiosk/internal/order/models"
	pgplatform "kiosk/internal/platform/postgres"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	txcontext "kiosk/pkg/platform/tx"
)

// MaxReader reads the highest committed queue number for a key (0 when none).
type MaxReader interface {
	MaxQueueNumber(ctx context.Context, serviceID domain.ServiceID, day domain.Day) (int64, error)
}

// Memory serializes callers per key with a KeyedLock held from Reserve until release.
type Memory struct {
	locks  *KeyedLock
	orders MaxReader
}

func NewMemory(orders MaxReader) *Memory {
	return &Memory{locks: NewKeyedLock(), orders: orders}
}

func (m *Memory) Reserve(ctx context.Context, key models.QueueKey) (int64, func(), error) {
	release, err := m.locks.Lock(ctx, key)
	if err != nil {
		return 0, nil, err
	}
	current, err := m.orders.MaxQueueNumber(ctx, key.ServiceID, key.Day)
	if err != nil {
		release()
		return 0, nil, fmt.Errorf("read queue max for %s: %w", key, err)
	}
	return current + 1, release, nil
}

// ErrNoTransaction is returned when Postgres.Reserve runs outside RunInTx.
var ErrNoTransaction = errors.New("queue number must be reserved inside a transaction")

// Postgres advances a counter row per key. The upsert takes the row lock, so
// same-key callers wait until the holding transaction commits or rolls back,
// and a rollback rewinds the counter.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const advanceQuery = `INSERT INTO order_sequences (service_id, service_day, last_value)
	VALUES ($1, $2, 1)
	ON CONFLICT (service_id, service_day)
	DO UPDATE SET last_value = order_sequences.last_value + 1
	RETURNING last_value`

func (p *Postgres) Reserve(ctx context.Context, key models.QueueKey) (int64, func(), error) {
	if _, ok := txcontext.From(ctx); !ok {
		return 0, nil, ErrNoTransaction
	}
	var n int64
	err := txcontext.Exec(ctx, p.db).QueryRowContext(ctx, advanceQuery, int64(key.ServiceID), key.Day.Time()).Scan(&n)
	if err != nil {
		if pgplatform.IsRetryable(err) {
			return 0, nil, fmt.Errorf("%w: advance queue %s: %w", sentinel.ErrSerialization, key, err)
		}
		return 0, nil, fmt.Errorf("advance queue %s: %w", key, err)
	}
	return n, func() {}, nil
}
