package visit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-process Repository used by tests and single-node
// deployments. It holds the ledger behind a mutex and hands out clones, so
// callers observe snapshots rather than shared state.
type MemoryRepo struct {
	mu     sync.RWMutex
	visits map[uuid.UUID]*Visit
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		visits: make(map[uuid.UUID]*Visit),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the repo's clock. Test hook.
func (r *MemoryRepo) SetClock(now func() time.Time) {
	r.now = now
}

func (r *MemoryRepo) Create(_ context.Context, v *Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := r.now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.Date.IsZero() {
		v.Date = v.CreatedAt
	}
	v.UpdatedAt = now

	r.visits[v.ID] = v.Clone()
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return v.Clone(), nil
}

func (r *MemoryRepo) ApplyFields(_ context.Context, id uuid.UUID, fields Fields) (*Visit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.visits[id]
	if !ok {
		return nil, ErrNotFound
	}

	merged := v.Clone()
	if err := fields.merge(merged); err != nil {
		return nil, err
	}
	merged.UpdatedAt = r.now()

	r.visits[id] = merged
	return merged.Clone(), nil
}

func (r *MemoryRepo) List(_ context.Context, f Filter) ([]*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Visit
	for _, v := range r.visits {
		if f.matches(v) {
			out = append(out, v.Clone())
		}
	}
	return out, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.visits[id]; !ok {
		return ErrNotFound
	}
	delete(r.visits, id)
	return nil
}
