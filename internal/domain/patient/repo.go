package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("patient not found")
	ErrDuplicateMRN = errors.New("mrn already registered")
)

// Repository is the patient registry.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Search(ctx context.Context, query string, limit int) ([]*Patient, error)
}
