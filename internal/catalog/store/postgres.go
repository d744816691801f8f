package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kiosk/internal/catalog/models"
	pgplatform "kiosk/internal/platform/postgres"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	txcontext "kiosk/pkg/platform/tx"
)

// PostgresStore persists the service catalog in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const serviceColumns = `id, name, description, insurance_price, service_price, active, created_at`

func (s *PostgresStore) Create(ctx context.Context, svc *models.Service) error {
	query := `INSERT INTO services (name, description, insurance_price, service_price, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	var id int64
	err := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query,
		svc.Name, svc.Description, svc.InsurancePrice, svc.ServicePrice, svc.Active, svc.CreatedAt,
	).Scan(&id)
	if err != nil {
		if pgplatform.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert service: %w", err)
	}
	svc.ID = domain.ServiceID(id)
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ServiceID) (*models.Service, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = $1`, int64(id))
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find service: %w", err)
	}
	return svc, nil
}

func (s *PostgresStore) List(ctx context.Context, activeOnly bool) ([]*models.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE ($1 = FALSE OR active) ORDER BY name`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []*models.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		out = append(out, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetActive(ctx context.Context, id domain.ServiceID, active bool) (*models.Service, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx,
		`UPDATE services SET active = $2 WHERE id = $1 RETURNING `+serviceColumns, int64(id), active)
	svc, err := scanService(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("set service active: %w", err)
	}
	return svc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*models.Service, error) {
	var (
		svc models.Service
		id  int64
	)
	err := row.Scan(&id, &svc.Name, &svc.Description, &svc.InsurancePrice, &svc.ServicePrice,
		&svc.Active, &svc.CreatedAt)
	if err != nil {
		return nil, err
	}
	svc.ID = domain.ServiceID(id)
	return &svc, nil
}
