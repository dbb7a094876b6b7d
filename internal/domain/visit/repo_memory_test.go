package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryRepoCloneOnRead(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	v := &Visit{PatientID: uuid.New(), Status: StatusReception}
	if err := repo.Create(ctx, v); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := repo.GetByID(ctx, v.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Status = StatusCompleted

	again, _ := repo.GetByID(ctx, v.ID)
	if again.Status != StatusReception {
		t.Error("mutating a returned visit leaked into the store")
	}
}

func TestMemoryRepoApplyFields(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	created := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	clock := created
	repo.SetClock(func() time.Time { return clock })

	v := &Visit{PatientID: uuid.New(), Status: StatusReception}
	if err := repo.Create(ctx, v); err != nil {
		t.Fatalf("create: %v", err)
	}

	clock = updated
	got, err := repo.ApplyFields(ctx, v.ID, Fields{
		FieldStatus:    StatusConsulting,
		FieldDiagnosis: "M54.5",
	})
	if err != nil {
		t.Fatalf("ApplyFields: %v", err)
	}

	if got.Status != StatusConsulting || got.Diagnosis == nil || *got.Diagnosis != "M54.5" {
		t.Errorf("merge result = %+v", got)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, updated)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, must not change on merge", got.CreatedAt)
	}

	// Untouched fields survive the merge.
	if got.PatientID != v.PatientID {
		t.Error("patient reference lost on merge")
	}
}

func TestMemoryRepoApplyFieldsRejectsUnknownAtomically(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	v := &Visit{PatientID: uuid.New(), Status: StatusReception}
	repo.Create(ctx, v)

	_, err := repo.ApplyFields(ctx, v.ID, Fields{
		FieldDiagnosis: "M54.5",
		"specialty":    "ortho",
	})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("got %v, want ErrUnknownField", err)
	}

	stored, _ := repo.GetByID(ctx, v.ID)
	if stored.Diagnosis != nil {
		t.Error("rejected merge applied a partial write")
	}
}

func TestMemoryRepoNotFound(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	id := uuid.New()

	if _, err := repo.GetByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID: got %v, want ErrNotFound", err)
	}
	if _, err := repo.ApplyFields(ctx, id, Fields{FieldDiagnosis: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("ApplyFields: got %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete: got %v, want ErrNotFound", err)
	}
}

func TestMemoryRepoListFilter(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	order := "CBC"
	patientID := uuid.New()
	repo.Create(ctx, &Visit{PatientID: patientID, Status: StatusConsulting, TestOrder: &order})
	repo.Create(ctx, &Visit{PatientID: uuid.New(), Status: StatusReception})
	repo.Create(ctx, &Visit{PatientID: uuid.New(), Status: StatusCompleted})

	withOrder, err := repo.List(ctx, Filter{HasTestOrder: true})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(withOrder) != 1 {
		t.Errorf("HasTestOrder filter = %d entries, want 1", len(withOrder))
	}

	byStatus, _ := repo.List(ctx, Filter{Statuses: []Status{StatusReception, StatusCompleted}})
	if len(byStatus) != 2 {
		t.Errorf("status filter = %d entries, want 2", len(byStatus))
	}

	byPatient, _ := repo.List(ctx, Filter{PatientID: patientID})
	if len(byPatient) != 1 {
		t.Errorf("patient filter = %d entries, want 1", len(byPatient))
	}

	all, _ := repo.List(ctx, Filter{})
	if len(all) != 3 {
		t.Errorf("empty filter = %d entries, want 3", len(all))
	}
}
