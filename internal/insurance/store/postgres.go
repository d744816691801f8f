package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kiosk/internal/insurance/models"
	pgplatform "kiosk/internal/platform/postgres"
	"kiosk/pkg/domain"
	"kiosk/pkg/platform/sentinel"
	txcontext "kiosk/pkg/platform/tx"
)

// PostgresStore persists insurance cards in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const insuranceColumns = `citizen_id, insurance_id, full_name, gender, dob, phone,
	registration_place, valid_from, expired, created_at`

func (s *PostgresStore) Create(ctx context.Context, ins *models.Insurance) error {
	query := `INSERT INTO insurance (` + insuranceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		ins.CitizenID.String(), ins.InsuranceID.String(), ins.FullName, ins.Gender.String(), ins.DOB.Time(), ins.Phone,
		ins.RegistrationPlace, ins.ValidFrom.Time(), ins.Expired.Time(), ins.CreatedAt,
	)
	if err != nil {
		if pgplatform.IsUniqueViolation(err) {
			if pgplatform.ConstraintName(err) == "insurance_insurance_id_key" {
				return ErrInsuranceIDTaken
			}
			return ErrCitizenHasInsurance
		}
		return fmt.Errorf("insert insurance: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCitizen(ctx context.Context, citizenID domain.CitizenID) (*models.Insurance, error) {
	query := `SELECT ` + insuranceColumns + ` FROM insurance WHERE citizen_id = $1`
	row := txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, citizenID.String())
	ins, err := scanInsurance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find insurance: %w", err)
	}
	return ins, nil
}

func (s *PostgresStore) Delete(ctx context.Context, citizenID domain.CitizenID) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM insurance WHERE citizen_id = $1`, citizenID.String())
	if err != nil {
		return fmt.Errorf("delete insurance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete insurance: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListValid(ctx context.Context, asOf domain.Day) ([]*models.Insurance, error) {
	return s.list(ctx, `valid_from <= $1 AND expired >= $1`, asOf.Time())
}

func (s *PostgresStore) ListExpired(ctx context.Context, asOf domain.Day) ([]*models.Insurance, error) {
	return s.list(ctx, `expired < $1`, asOf.Time())
}

func (s *PostgresStore) ListExpiringSoon(ctx context.Context, asOf domain.Day, days int) ([]*models.Insurance, error) {
	return s.list(ctx, `valid_from <= $1 AND expired >= $1 AND expired <= $2`, asOf.Time(), asOf.AddDays(days).Time())
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]*models.Insurance, error) {
	query := `SELECT ` + insuranceColumns + ` FROM insurance WHERE ` + where + ` ORDER BY expired, citizen_id`
	rows, err := txcontext.Exec(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list insurance: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Insurance, 0)
	for rows.Next() {
		ins, err := scanInsurance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan insurance: %w", err)
		}
		out = append(out, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list insurance: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInsurance(row rowScanner) (*models.Insurance, error) {
	var (
		ins                       models.Insurance
		citizenID, insuranceID    string
		gender                    string
		dob, validFrom, expiredAt time.Time
	)
	err := row.Scan(&citizenID, &insuranceID, &ins.FullName, &gender, &dob, &ins.Phone,
		&ins.RegistrationPlace, &validFrom, &expiredAt, &ins.CreatedAt)
	if err != nil {
		return nil, err
	}
	ins.CitizenID = domain.CitizenID(citizenID)
	ins.InsuranceID = domain.InsuranceID(insuranceID)
	ins.Gender = domain.Gender(gender)
	ins.DOB = domain.DayFromTime(dob)
	ins.ValidFrom = domain.DayFromTime(validFrom)
	ins.Expired = domain.DayFromTime(expiredAt)
	return &ins, nil
}
