package ingest

import (
	"context"
	"sync"
)

// MemoryRepository keeps jots in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	jots   []Jot
	closed bool
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Save(_ context.Context, jot Jot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.jots = append(r.jots, jot)
	return nil
}

func (r *MemoryRepository) List(_ context.Context, kind string, limit int) ([]Jot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []Jot
	for i := len(r.jots) - 1; i >= 0 && len(out) < limit; i-- {
		if kind != "" && r.jots[i].Type != kind {
			continue
		}
		out = append(out, r.jots[i])
	}
	return out, nil
}

func (r *MemoryRepository) Ping(context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrClosed
	}
	return nil
}

func (r *MemoryRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
