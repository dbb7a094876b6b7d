package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const patientCols = `id, mrn, first_name, last_name, birth_date, gender, phone, active, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo builds the PostgreSQL-backed registry.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patient (mrn, first_name, last_name, birth_date, gender, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+patientCols,
		p.MRN, p.FirstName, p.LastName, p.BirthDate, p.Gender, p.Phone, p.Active,
	)

	if err := scanPatient(row, p); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateMRN, p.MRN)
		}
		return fmt.Errorf("create patient: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id)

	var p Patient
	if err := scanPatient(row, &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return &p, nil
}

func (r *repoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE mrn = $1`, mrn)

	var p Patient
	if err := scanPatient(row, &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient by mrn: %w", err)
	}
	return &p, nil
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	row := r.pool.QueryRow(ctx, `
		UPDATE patient
		SET first_name = $2, last_name = $3, birth_date = $4, gender = $5,
		    phone = $6, active = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING `+patientCols,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Gender, p.Phone, p.Active,
	)

	if err := scanPatient(row, p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update patient: %w", err)
	}
	return nil
}

func (r *repoPG) Search(ctx context.Context, query string, limit int) ([]*Patient, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientCols+`
		FROM patient
		WHERE active
		  AND (LOWER(first_name) LIKE $1 OR LOWER(last_name) LIKE $1 OR LOWER(mrn) LIKE $1)
		ORDER BY last_name, first_name
		LIMIT $2`,
		pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		var p Patient
		if err := scanPatient(rows, &p); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func scanPatient(row pgx.Row, p *Patient) error {
	return row.Scan(
		&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.BirthDate,
		&p.Gender, &p.Phone, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
}
