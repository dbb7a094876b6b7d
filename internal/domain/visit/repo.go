package visit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the target visit no longer exists, e.g.
	// it was deleted administratively mid-workflow.
	ErrNotFound = errors.New("visit not found")

	// ErrUnknownField is returned when a merge write names a field outside
	// the whitelist.
	ErrUnknownField = errors.New("unknown visit field")

	// ErrInvalidInput is returned for requests that are malformed before
	// they reach the ledger, e.g. a missing patient reference.
	ErrInvalidInput = errors.New("invalid input")
)

// Filter narrows List results. Zero values mean "match anything".
type Filter struct {
	Statuses     []Status
	Since        time.Time // keep visits with Date >= Since
	HasTestOrder bool      // keep only visits with a non-empty test order
	PatientID    uuid.UUID
}

func (f Filter) matches(v *Visit) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if v.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.Since.IsZero() && v.Date.Before(f.Since) {
		return false
	}
	if f.HasTestOrder && !v.HasTestOrder() {
		return false
	}
	if f.PatientID != uuid.Nil && v.PatientID != f.PatientID {
		return false
	}
	return true
}

// Repository is the shared visit ledger. ApplyFields is the only mutation
// path after creation: a single atomic write that merges the given fields
// last-writer-wins and stamps updated_at server-side, so concurrent stations
// writing disjoint field sets never clobber each other's work.
type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	ApplyFields(ctx context.Context, id uuid.UUID, fields Fields) (*Visit, error)
	List(ctx context.Context, f Filter) ([]*Visit, error)

	// Delete removes a visit. It is an administrative action, never part of
	// the status machine.
	Delete(ctx context.Context, id uuid.UUID) error
}
