package visit

import (
	"errors"
	"testing"
	"time"
)

func TestFieldsMergeWhitelist(t *testing.T) {
	v := &Visit{Status: StatusReception}

	err := Fields{"favorite_color": "blue"}.merge(v)
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("merge unknown field: got %v, want ErrUnknownField", err)
	}
}

func TestFieldsMergeWritesClinicalFields(t *testing.T) {
	v := &Visit{Status: StatusConsulting}

	err := Fields{
		FieldDiagnosis:      "M54.5",
		FieldChiefComplaint: "lower back pain",
		FieldPlan:           "rest, NSAIDs",
		FieldTestOrder:      "CBC",
		FieldTestStatus:     TestProcessing,
		FieldStatus:         StatusTesting,
	}.merge(v)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if v.Status != StatusTesting {
		t.Errorf("Status = %s, want testing", v.Status)
	}
	if v.Diagnosis == nil || *v.Diagnosis != "M54.5" {
		t.Errorf("Diagnosis = %v, want M54.5", v.Diagnosis)
	}
	if v.ChiefComplaint == nil || *v.ChiefComplaint != "lower back pain" {
		t.Errorf("ChiefComplaint = %v", v.ChiefComplaint)
	}
	if !v.HasTestOrder() {
		t.Error("HasTestOrder() = false after writing test_order")
	}
	if v.TestStatus == nil || *v.TestStatus != TestProcessing {
		t.Errorf("TestStatus = %v, want processing", v.TestStatus)
	}
}

func TestFieldsMergeIsIdempotent(t *testing.T) {
	stamp := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	fields := Fields{
		FieldStatus:               StatusCompleted,
		FieldTreatmentCompletedAt: stamp,
	}

	a := &Visit{Status: StatusTreatment}
	b := &Visit{Status: StatusTreatment}

	if err := fields.merge(a); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	if err := fields.merge(a); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if err := fields.merge(b); err != nil {
		t.Fatalf("merge onto fresh copy: %v", err)
	}

	if a.Status != b.Status {
		t.Errorf("status diverged after re-apply: %s vs %s", a.Status, b.Status)
	}
	if !a.TreatmentCompletedAt.Equal(*b.TreatmentCompletedAt) {
		t.Errorf("treatment_completed_at diverged: %v vs %v", a.TreatmentCompletedAt, b.TreatmentCompletedAt)
	}
}

func TestFieldsMergeRejectsBadEnums(t *testing.T) {
	v := &Visit{Status: StatusReception}

	if err := (Fields{FieldStatus: "teleported"}).merge(v); err == nil {
		t.Error("expected error for invalid status value")
	}
	if err := (Fields{FieldTestStatus: "maybe"}).merge(v); err == nil {
		t.Error("expected error for invalid test_status value")
	}
	if v.Status != StatusReception {
		t.Errorf("status mutated on rejected merge: %s", v.Status)
	}
}

func TestFieldsMergeAcceptsRFC3339Timestamp(t *testing.T) {
	v := &Visit{Status: StatusTreatment}

	err := Fields{FieldTreatmentCompletedAt: "2026-03-14T10:30:00Z"}.merge(v)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if v.TreatmentCompletedAt == nil || v.TreatmentCompletedAt.Hour() != 10 {
		t.Errorf("TreatmentCompletedAt = %v", v.TreatmentCompletedAt)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	order := "CBC"
	v := &Visit{Status: StatusConsulting, TestOrder: &order}

	cp := v.Clone()
	*cp.TestOrder = "BMP"
	cp.Status = StatusTesting

	if *v.TestOrder != "CBC" {
		t.Errorf("mutating clone changed original test order: %s", *v.TestOrder)
	}
	if v.Status != StatusConsulting {
		t.Errorf("mutating clone changed original status: %s", v.Status)
	}
}

func TestHasTestOrder(t *testing.T) {
	empty := ""
	order := "CBC"

	cases := []struct {
		name string
		v    Visit
		want bool
	}{
		{"nil order", Visit{}, false},
		{"empty order", Visit{TestOrder: &empty}, false},
		{"present order", Visit{TestOrder: &order}, true},
	}
	for _, tc := range cases {
		if got := tc.v.HasTestOrder(); got != tc.want {
			t.Errorf("%s: HasTestOrder() = %v, want %v", tc.name, got, tc.want)
		}
	}
}
