package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestAuthority(t *testing.T) (*Authority, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	return NewAuthority(repo, zerolog.Nop()), repo
}

func seedVisit(t *testing.T, repo *MemoryRepo, mutate func(*Visit)) *Visit {
	t.Helper()
	v := &Visit{
		PatientName: "Ada Lovelace",
		Status:      StatusReception,
		Type:        TypeNew,
	}
	if mutate != nil {
		mutate(v)
	}
	if err := repo.Create(context.Background(), v); err != nil {
		t.Fatalf("seed visit: %v", err)
	}
	return v
}

func TestTransitionGraph(t *testing.T) {
	cases := []struct {
		name   string
		from   Status
		to     Status
		fields Fields
		ok     bool
	}{
		{"reception to consulting", StatusReception, StatusConsulting, nil, true},
		{"consulting to testing", StatusConsulting, StatusTesting, Fields{FieldTestOrder: "CBC"}, true},
		{"consulting to treatment", StatusConsulting, StatusTreatment, Fields{FieldDiagnosis: "M54.5", FieldTreatmentNote: "heat pack"}, true},
		{"testing to treatment", StatusTesting, StatusTreatment, nil, true},
		{"testing to completed", StatusTesting, StatusCompleted, nil, true},
		{"treatment to completed", StatusTreatment, StatusCompleted, nil, true},

		{"reception skips to treatment", StatusReception, StatusTreatment, nil, false},
		{"reception skips to completed", StatusReception, StatusCompleted, nil, false},
		{"consulting back to reception", StatusConsulting, StatusReception, nil, false},
		{"treatment back to consulting", StatusTreatment, StatusConsulting, nil, false},
		{"completed to anything", StatusCompleted, StatusConsulting, nil, false},
		{"completed reopened", StatusCompleted, StatusTreatment, nil, false},
		{"unknown target", StatusReception, Status("triage"), nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authority, repo := newTestAuthority(t)
			v := seedVisit(t, repo, func(v *Visit) { v.Status = tc.from })

			_, err := authority.RequestTransition(context.Background(), v.ID, tc.from, tc.to, tc.fields)
			if tc.ok && err != nil {
				t.Fatalf("expected edge %s -> %s to apply: %v", tc.from, tc.to, err)
			}
			if !tc.ok {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition for %s -> %s, got %v", tc.from, tc.to, err)
				}
				stored, _ := repo.GetByID(context.Background(), v.ID)
				if stored.Status != tc.from {
					t.Errorf("rejected transition mutated status: %s", stored.Status)
				}
			}
		})
	}
}

func TestTransitionRequiredFields(t *testing.T) {
	authority, repo := newTestAuthority(t)
	v := seedVisit(t, repo, func(v *Visit) { v.Status = StatusConsulting })

	_, err := authority.RequestTransition(context.Background(), v.ID, StatusConsulting, StatusTreatment,
		Fields{FieldDiagnosis: "M54.5"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("missing treatment_note: got %v, want ErrInvalidTransition", err)
	}

	_, err = authority.RequestTransition(context.Background(), v.ID, StatusConsulting, StatusTesting,
		Fields{FieldTestOrder: ""})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("empty test_order must not satisfy the requirement: got %v", err)
	}

	stored, _ := repo.GetByID(context.Background(), v.ID)
	if stored.Diagnosis != nil {
		t.Error("rejected transition wrote diagnosis")
	}
}

func TestTransitionRejectedWritesNothing(t *testing.T) {
	authority, repo := newTestAuthority(t)
	v := seedVisit(t, repo, nil)

	_, err := authority.RequestTransition(context.Background(), v.ID, StatusReception, StatusTreatment,
		Fields{FieldDiagnosis: "J06.9", FieldTreatmentNote: "fluids"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition", err)
	}

	stored, _ := repo.GetByID(context.Background(), v.ID)
	if stored.Status != StatusReception || stored.Diagnosis != nil || stored.TreatmentNote != nil {
		t.Errorf("rejected transition left a mutation behind: %+v", stored)
	}
}

func TestTransitionStaleKnownStatusStillApplies(t *testing.T) {
	authority, repo := newTestAuthority(t)
	v := seedVisit(t, repo, func(v *Visit) { v.Status = StatusConsulting })

	// Caller still believes the visit is at reception; the stored status
	// admits the edge, so the write goes through.
	updated, err := authority.RequestTransition(context.Background(), v.ID, StatusReception, StatusTesting,
		Fields{FieldTestOrder: "CBC"})
	if err != nil {
		t.Fatalf("stale known status should not block a valid edge: %v", err)
	}
	if updated.Status != StatusTesting {
		t.Errorf("Status = %s, want testing", updated.Status)
	}
}

func TestTransitionAutoStartsFreshTestOrder(t *testing.T) {
	authority, repo := newTestAuthority(t)
	v := seedVisit(t, repo, nil)

	updated, err := authority.RequestTransition(context.Background(), v.ID, StatusReception, StatusConsulting,
		Fields{FieldTestOrder: "CBC"})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.TestStatus == nil || *updated.TestStatus != TestProcessing {
		t.Errorf("TestStatus = %v, want processing for a fresh order", updated.TestStatus)
	}
}

func TestTransitionStampsCompletion(t *testing.T) {
	authority, repo := newTestAuthority(t)
	stamp := time.Date(2026, 3, 14, 16, 0, 0, 0, time.UTC)
	authority.SetClock(func() time.Time { return stamp })
	v := seedVisit(t, repo, func(v *Visit) { v.Status = StatusTreatment })

	updated, err := authority.RequestTransition(context.Background(), v.ID, StatusTreatment, StatusCompleted, nil)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if updated.TreatmentCompletedAt == nil || !updated.TreatmentCompletedAt.Equal(stamp) {
		t.Errorf("TreatmentCompletedAt = %v, want %v", updated.TreatmentCompletedAt, stamp)
	}
}

func TestTransitionNotFound(t *testing.T) {
	authority, repo := newTestAuthority(t)
	v := seedVisit(t, repo, nil)
	if err := repo.Delete(context.Background(), v.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	_, err := authority.RequestTransition(context.Background(), v.ID, StatusReception, StatusConsulting, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestBeginTest(t *testing.T) {
	authority, repo := newTestAuthority(t)
	noOrder := seedVisit(t, repo, func(v *Visit) { v.Status = StatusConsulting })

	if _, err := authority.BeginTest(context.Background(), noOrder.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("BeginTest without an order: got %v, want ErrInvalidTransition", err)
	}

	order := "CBC"
	withOrder := seedVisit(t, repo, func(v *Visit) {
		v.Status = StatusConsulting
		v.TestOrder = &order
	})

	updated, err := authority.BeginTest(context.Background(), withOrder.ID)
	if err != nil {
		t.Fatalf("BeginTest: %v", err)
	}
	if updated.TestStatus == nil || *updated.TestStatus != TestProcessing {
		t.Errorf("TestStatus = %v, want processing", updated.TestStatus)
	}
}

func TestCompleteTestLeavesStatusAlone(t *testing.T) {
	authority, repo := newTestAuthority(t)
	order := "CBC"
	v := seedVisit(t, repo, func(v *Visit) {
		v.Status = StatusTreatment
		v.TestOrder = &order
	})

	updated, err := authority.CompleteTest(context.Background(), v.ID, "WBC 7.2")
	if err != nil {
		t.Fatalf("CompleteTest: %v", err)
	}
	if updated.Status != StatusTreatment {
		t.Errorf("Status = %s, lab completion must not move the patient", updated.Status)
	}
	if updated.TestResult == nil || *updated.TestResult != "WBC 7.2" {
		t.Errorf("TestResult = %v", updated.TestResult)
	}
	if updated.TestStatus == nil || *updated.TestStatus != TestCompleted {
		t.Errorf("TestStatus = %v, want completed", updated.TestStatus)
	}

	if _, err := authority.CompleteTest(context.Background(), v.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("empty result: got %v, want ErrInvalidTransition", err)
	}
}
