package job

import (
	"context"
	"sync"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is a Repository for a single process run. It holds
// snapshots: a job saved here is unaffected by later changes to the
// caller's copy until the next Save.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*Job
	order []string
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*Job{}}
}

func (r *MemoryRepository) Save(_ context.Context, job *Job) error {
	snapshot := job.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.byID[snapshot.ID]; !seen {
		r.order = append(r.order, snapshot.ID)
	}
	r.byID[snapshot.ID] = snapshot
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if j, ok := r.byID[id]; ok {
		return j.Clone(), nil
	}
	return nil, ErrJobNotFound
}

// List returns snapshots in first-save order. Jobs created in the same
// instant still come back in submission order.
func (r *MemoryRepository) List(_ context.Context) ([]*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Job, len(r.order))
	for i, id := range r.order {
		out[i] = r.byID[id].Clone()
	}
	return out, nil
}
