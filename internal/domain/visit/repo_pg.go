package visit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepo returns the Postgres-backed visit ledger.
func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const visitCols = `id, patient_id, patient_name, "date", status, "type",
	diagnosis, cc, "plan", treatment_note,
	test_order, test_result, test_status,
	treatment_completed_at, created_at, updated_at`

// fieldColumns maps merge-write field names to their columns. ApplyFields
// refuses anything outside this map.
var fieldColumns = map[string]string{
	FieldStatus:               "status",
	FieldDiagnosis:            "diagnosis",
	FieldChiefComplaint:       "cc",
	FieldPlan:                 `"plan"`,
	FieldTreatmentNote:        "treatment_note",
	FieldTestOrder:            "test_order",
	FieldTestResult:           "test_result",
	FieldTestStatus:           "test_status",
	FieldTreatmentCompletedAt: "treatment_completed_at",
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO visit (
			id, patient_id, patient_name, "date", status, "type",
			diagnosis, cc, "plan", treatment_note,
			test_order, test_result, test_status, treatment_completed_at
		) VALUES (
			$1,$2,$3,COALESCE($4, NOW()),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
		) RETURNING "date", created_at, updated_at`,
		v.ID, v.PatientID, v.PatientName, nullTime(v.Date), v.Status, v.Type,
		v.Diagnosis, v.ChiefComplaint, v.Plan, v.TreatmentNote,
		v.TestOrder, v.TestResult, v.TestStatus, v.TreatmentCompletedAt,
	)
	return row.Scan(&v.Date, &v.CreatedAt, &v.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.pool.QueryRow(ctx, `SELECT `+visitCols+` FROM visit WHERE id = $1`, id))
}

func (r *repoPG) ApplyFields(ctx context.Context, id uuid.UUID, fields Fields) (*Visit, error) {
	// Validate names and values against the shared merge rules before
	// touching the database, so both stores reject the same inputs.
	if err := fields.merge(&Visit{Status: StatusReception}); err != nil {
		return nil, err
	}

	set := make([]string, 0, len(fields)+1)
	args := []any{id}
	for name, val := range fields {
		col := fieldColumns[name]
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	set = append(set, "updated_at = NOW()")

	row := r.pool.QueryRow(ctx,
		`UPDATE visit SET `+strings.Join(set, ", ")+` WHERE id = $1 RETURNING `+visitCols,
		args...,
	)
	return scanVisit(row)
}

func (r *repoPG) List(ctx context.Context, f Filter) ([]*Visit, error) {
	where := []string{"TRUE"}
	var args []any
	if len(f.Statuses) > 0 {
		args = append(args, f.Statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, fmt.Sprintf(`"date" >= $%d`, len(args)))
	}
	if f.HasTestOrder {
		where = append(where, "COALESCE(test_order, '') <> ''")
	}
	if f.PatientID != uuid.Nil {
		args = append(args, f.PatientID)
		where = append(where, fmt.Sprintf("patient_id = $%d", len(args)))
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+visitCols+` FROM visit WHERE `+strings.Join(where, " AND "),
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM visit WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(
		&v.ID, &v.PatientID, &v.PatientName, &v.Date, &v.Status, &v.Type,
		&v.Diagnosis, &v.ChiefComplaint, &v.Plan, &v.TreatmentNote,
		&v.TestOrder, &v.TestResult, &v.TestStatus,
		&v.TreatmentCompletedAt, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
