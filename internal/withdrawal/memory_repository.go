package withdrawal

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Request
}

// NewMemoryRepository constructs an in-memory repository for tests and dev mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Request)}
}

func (r *memoryRepository) Create(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storage[req.ID] = req
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.storage[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return req, nil
}

func (r *memoryRepository) Transition(_ context.Context, req Request, expected Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[req.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expected {
		return ErrStaleStatus
	}
	r.storage[req.ID] = req
	return nil
}

func (r *memoryRepository) ListByStatus(_ context.Context, status Status, limit int) ([]Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Request
	for _, req := range r.storage {
		if req.Status == status {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
