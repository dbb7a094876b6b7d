package patient

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory registry for tests and local development.
type MemoryRepo struct {
	mu       sync.RWMutex
	patients map[uuid.UUID]*Patient
	now      func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		patients: make(map[uuid.UUID]*Patient),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepo) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.patients {
		if existing.MRN == p.MRN {
			return fmt.Errorf("%w: %s", ErrDuplicateMRN, p.MRN)
		}
	}

	p.ID = uuid.New()
	p.CreatedAt = r.now()
	p.UpdatedAt = p.CreatedAt
	r.patients[p.ID] = p.Clone()
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryRepo) GetByMRN(_ context.Context, mrn string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.patients {
		if p.MRN == mrn {
			return p.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.patients[p.ID]
	if !ok {
		return ErrNotFound
	}

	cp := p.Clone()
	cp.MRN = stored.MRN
	cp.CreatedAt = stored.CreatedAt
	cp.UpdatedAt = r.now()
	r.patients[p.ID] = cp
	*p = *cp.Clone()
	return nil
}

func (r *MemoryRepo) Search(_ context.Context, query string, limit int) ([]*Patient, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	var out []*Patient
	for _, p := range r.patients {
		if !p.Active {
			continue
		}
		if strings.Contains(strings.ToLower(p.FirstName), q) ||
			strings.Contains(strings.ToLower(p.LastName), q) ||
			strings.Contains(strings.ToLower(p.MRN), q) {
			out = append(out, p.Clone())
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
