package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"kiosk/internal/patient/models"
	pgplatform "kiosk/internal/platform/postgres"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	txcontext "kiosk/pkg/platform/tx"
)

// PostgresStore persists patients in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const patientColumns = `citizen_id, full_name, dob, gender, phone, address, occupation,
	ethnicity, is_insurance, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *models.Patient) error {
	query := `INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		p.CitizenID.String(), p.FullName, p.DOB.Time(), p.Gender.String(), p.Phone, p.Address,
		p.Occupation, p.Ethnicity, p.IsInsurance, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if pgplatform.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCitizen(ctx context.Context, citizenID domain.CitizenID) (*models.Patient, error) {
	return s.findOne(ctx, `SELECT `+patientColumns+` FROM patients WHERE citizen_id = $1`, citizenID)
}

// FindByCitizens loads every existing patient among ids in one round trip.
func (s *PostgresStore) FindByCitizens(ctx context.Context, ids []domain.CitizenID) ([]*models.Patient, error) {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	query := `SELECT ` + patientColumns + ` FROM patients WHERE citizen_id = ANY($1::text[]) ORDER BY citizen_id`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Patient, 0, len(ids))
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find patients: %w", err)
	}
	return out, nil
}

// Execute locks the row with SELECT ... FOR UPDATE, runs apply and writes the
// allow-listed columns back. It must run inside a transaction bound to ctx.
func (s *PostgresStore) Execute(ctx context.Context, citizenID domain.CitizenID, apply func(*models.Patient) (*models.Patient, error)) (*models.Patient, error) {
	current, err := s.findOne(ctx, `SELECT `+patientColumns+` FROM patients WHERE citizen_id = $1 FOR UPDATE`, citizenID)
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
	query := `UPDATE patients
		SET full_name = $2, dob = $3, gender = $4, phone = $5, address = $6,
			occupation = $7, ethnicity = $8, updated_at = $9
		WHERE citizen_id = $1`
	_, err = txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		citizenID.String(), next.FullName, next.DOB.Time(), next.Gender.String(), next.Phone,
		next.Address, next.Occupation, next.Ethnicity, next.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	return next, nil
}

// UpdateInsuranceFlag writes only is_insurance and updated_at.
func (s *PostgresStore) UpdateInsuranceFlag(ctx context.Context, citizenID domain.CitizenID, isInsurance bool, at time.Time) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx,
		`UPDATE patients SET is_insurance = $2, updated_at = $3 WHERE citizen_id = $1`,
		citizenID.String(), isInsurance, at,
	)
	if err != nil {
		return fmt.Errorf("update insurance flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update insurance flag: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, citizenID domain.CitizenID) (*models.Patient, error) {
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, citizenID.String())
	p, err := scanPatient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPatient(row rowScanner) (*models.Patient, error) {
	var (
		p                 models.Patient
		citizenID, gender string
		dob               sql.NullTime
	)
	err := row.Scan(&citizenID, &p.FullName, &dob, &gender, &p.Phone, &p.Address, &p.Occupation,
		&p.Ethnicity, &p.IsInsurance, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CitizenID = domain.CitizenID(citizenID)
	p.Gender = domain.Gender(gender)
	if dob.Valid {
		p.DOB = domain.DayFromTime(dob.Time)
	}
	return &p, nil
}
