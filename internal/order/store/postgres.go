package store

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

// PostgresStore persists orders in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const orderColumns = `id, queue_number, citizen_id, service_id, service_day, status,
	payment_method, payment_status, price, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, o *models.Order) error {
	query := `INSERT INTO orders (queue_number, citizen_id, service_id, service_day, status,
			payment_method, payment_status, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	var id int64
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query,
		o.QueueNumber, o.CitizenID.String(), int64(o.ServiceID), o.ServiceDay.Time(), string(o.Status),
		string(o.PaymentMethod), string(o.PaymentStatus), o.Price, o.CreatedAt, o.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return classify(err, "insert order")
	}
	o.ID = domain.OrderID(id)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.OrderID) (*models.Order, error) {
	return s.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

func (s *PostgresStore) MaxQueueNumber(ctx context.Context, serviceID domain.ServiceID, day domain.Day) (int64, error) {
	var n int64
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(queue_number), 0) FROM orders WHERE service_id = $1 AND service_day = $2`,
		int64(serviceID), day.Time(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read queue max: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) ListQueue(ctx context.Context, serviceID domain.ServiceID, day domain.Day) ([]*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE service_id = $1 AND service_day = $2
		ORDER BY queue_number`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, int64(serviceID), day.Time())
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return out, nil
}

// Execute locks the order row, runs apply and writes back the mutable
// columns. It must run inside a transaction bound to ctx.
func (s *PostgresStore) Execute(ctx context.Context, id domain.OrderID, apply func(*models.Order) (*models.Order, error)) (*models.Order, error) {
	current, err := s.findOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	next, err := apply(current)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE orders SET status = $2, payment_status = $3, payment_method = $4, updated_at = $5 WHERE id = $1`,
		int64(id), string(next.Status), string(next.PaymentStatus), string(next.PaymentMethod), next.UpdatedAt,
	)
	if err != nil {
		return nil, classify(err, "update order")
	}
	current.Status = next.Status
	current.PaymentStatus = next.PaymentStatus
	current.PaymentMethod = next.PaymentMethod
	current.UpdatedAt = next.UpdatedAt
	return current, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, id domain.OrderID) (*models.Order, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, int64(id))
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify(err, "find order")
	}
	return o, nil
}

func classify(err error, op string) error {
	switch {
	case pgplatform.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, sentinel.ErrAlreadyUsed)
	case pgplatform.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	case pgplatform.IsRetryable(err):
		return fmt.Errorf("%w: %s: %w", sentinel.ErrSerialization, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o                              models.Order
		id, serviceID                  int64
		citizenID, status, method, pay string
		day                            sql.NullTime
	)
	err := row.Scan(&id, &o.QueueNumber, &citizenID, &serviceID, &day, &status,
		&method, &pay, &o.Price, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.ID = domain.OrderID(id)
	o.CitizenID = domain.CitizenID(citizenID)
	o.ServiceID = domain.ServiceID(serviceID)
	o.ServiceDay = domain.DayFromTime(day.Time)
	o.Status = models.Status(status)
	o.PaymentMethod = models.PaymentMethod(method)
	o.PaymentStatus = models.PaymentStatus(pay)
	return &o, nil
}
