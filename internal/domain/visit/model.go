package visit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the station currently responsible for a visit.
type Status string

const (
	StatusReception  Status = "reception"
	StatusConsulting Status = "consulting"
	StatusTesting    Status = "testing"
	StatusTreatment  Status = "treatment"
	StatusCompleted  Status = "completed"
)

var validStatuses = map[Status]bool{
	StatusReception:  true,
	StatusConsulting: true,
	StatusTesting:    true,
	StatusTreatment:  true,
	StatusCompleted:  true,
}

// TestStatus tracks an outstanding lab order on a visit.
type TestStatus string

const (
	TestProcessing TestStatus = "processing"
	TestCompleted  TestStatus = "completed"
)

// VisitType is informational and never affects transitions.
type VisitType string

const (
	TypeNew       VisitType = "new"
	TypeReturning VisitType = "returning"
)

var validTypes = map[VisitType]bool{
	TypeNew:       true,
	TypeReturning: true,
}

// Visit maps to the visit table. It is the unit of work flowing through the
// clinic: created at reception, advanced station by station, never reused.
type Visit struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	PatientName string    `db:"patient_name" json:"patient_name"`
	Date        time.Time `db:"date" json:"date"`
	Status      Status    `db:"status" json:"status"`
	Type        VisitType `db:"type" json:"type"`

	// Clinical fields, written by the consulting station.
	Diagnosis      *string `db:"diagnosis" json:"diagnosis,omitempty"`
	ChiefComplaint *string `db:"cc" json:"cc,omitempty"`
	Plan           *string `db:"plan" json:"plan,omitempty"`
	TreatmentNote  *string `db:"treatment_note" json:"treatment_note,omitempty"`

	// Lab fields. A non-empty TestOrder is what makes a visit reachable from
	// the lab queue; TestResult and TestStatus are written by the lab station.
	TestOrder  *string     `db:"test_order" json:"test_order,omitempty"`
	TestResult *string     `db:"test_result" json:"test_result,omitempty"`
	TestStatus *TestStatus `db:"test_status" json:"test_status,omitempty"`

	TreatmentCompletedAt *time.Time `db:"treatment_completed_at" json:"treatment_completed_at,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// HasTestOrder reports whether the visit carries an outstanding lab order.
func (v *Visit) HasTestOrder() bool {
	return v.TestOrder != nil && *v.TestOrder != ""
}

// Clone returns an independent copy of the visit. Stores hand out clones so
// that callers can never mutate shared state behind the repository's back.
func (v *Visit) Clone() *Visit {
	cp := *v
	cp.Diagnosis = cloneStr(v.Diagnosis)
	cp.ChiefComplaint = cloneStr(v.ChiefComplaint)
	cp.Plan = cloneStr(v.Plan)
	cp.TreatmentNote = cloneStr(v.TreatmentNote)
	cp.TestOrder = cloneStr(v.TestOrder)
	cp.TestResult = cloneStr(v.TestResult)
	if v.TestStatus != nil {
		ts := *v.TestStatus
		cp.TestStatus = &ts
	}
	if v.TreatmentCompletedAt != nil {
		t := *v.TreatmentCompletedAt
		cp.TreatmentCompletedAt = &t
	}
	return &cp
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Field names accepted by ApplyFields. Every mutation after creation is a
// merge write over this whitelist; anything else is a schema change, not a
// field write.
const (
	FieldStatus               = "status"
	FieldDiagnosis            = "diagnosis"
	FieldChiefComplaint       = "cc"
	FieldPlan                 = "plan"
	FieldTreatmentNote        = "treatment_note"
	FieldTestOrder            = "test_order"
	FieldTestResult           = "test_result"
	FieldTestStatus           = "test_status"
	FieldTreatmentCompletedAt = "treatment_completed_at"
)

// Fields is a set of named values applied atomically to a visit,
// last-writer-wins per field. Reapplying the same Fields is idempotent.
type Fields map[string]any

// merge writes the named fields onto v, validating names and value types.
// It is the single merge implementation shared by the in-memory store and
// the tests; the Postgres store mirrors it column for column.
func (f Fields) merge(v *Visit) error {
	for name, raw := range f {
		switch name {
		case FieldStatus:
			s, err := statusValue(raw)
			if err != nil {
				return err
			}
			v.Status = s
		case FieldDiagnosis:
			v.Diagnosis = textValue(raw)
		case FieldChiefComplaint:
			v.ChiefComplaint = textValue(raw)
		case FieldPlan:
			v.Plan = textValue(raw)
		case FieldTreatmentNote:
			v.TreatmentNote = textValue(raw)
		case FieldTestOrder:
			v.TestOrder = textValue(raw)
		case FieldTestResult:
			v.TestResult = textValue(raw)
		case FieldTestStatus:
			ts, err := testStatusValue(raw)
			if err != nil {
				return err
			}
			v.TestStatus = ts
		case FieldTreatmentCompletedAt:
			t, err := timeValue(raw)
			if err != nil {
				return err
			}
			v.TreatmentCompletedAt = t
		default:
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
	}
	return nil
}

func statusValue(raw any) (Status, error) {
	var s Status
	switch val := raw.(type) {
	case Status:
		s = val
	case string:
		s = Status(val)
	default:
		return "", fmt.Errorf("status: unsupported value %T", raw)
	}
	if !validStatuses[s] {
		return "", fmt.Errorf("%w: status %s", ErrInvalidInput, s)
	}
	return s, nil
}

func testStatusValue(raw any) (*TestStatus, error) {
	if raw == nil {
		return nil, nil
	}
	var ts TestStatus
	switch val := raw.(type) {
	case TestStatus:
		ts = val
	case string:
		ts = TestStatus(val)
	default:
		return nil, fmt.Errorf("test_status: unsupported value %T", raw)
	}
	if ts != TestProcessing && ts != TestCompleted {
		return nil, fmt.Errorf("%w: test_status %s", ErrInvalidInput, ts)
	}
	return &ts, nil
}

func textValue(raw any) *string {
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		return &val
	case *string:
		return val
	default:
		s := fmt.Sprintf("%v", val)
		return &s
	}
}

func timeValue(raw any) (*time.Time, error) {
	switch val := raw.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &val, nil
	case *time.Time:
		return val, nil
	case string:
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return nil, fmt.Errorf("treatment_completed_at: %w", err)
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("treatment_completed_at: unsupported value %T", raw)
	}
}
