package run

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// DefaultRetention is how many runs a MemoryRepository keeps.
const DefaultRetention = 200

// MemoryRepository is an in-memory Repository. Once more than retention runs
// are stored, the oldest terminal runs are evicted.
type MemoryRepository struct {
	mu        sync.RWMutex
	runs      map[string]*Run
	retention int
}

// NewMemoryRepository creates a repository. A non-positive retention uses DefaultRetention.
func NewMemoryRepository(retention int) *MemoryRepository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &MemoryRepository{
		runs:      make(map[string]*Run),
		retention: retention,
	}
}

// Save stores a clone of r.
func (m *MemoryRepository) Save(_ context.Context, r *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r.Clone()
	m.evictLocked()
	return nil
}

// FindByID returns a clone of the stored run.
func (m *MemoryRepository) FindByID(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return r.Clone(), nil
}

// List returns clones, newest first.
func (m *MemoryRepository) List(_ context.Context) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedLocked(), nil
}

func (m *MemoryRepository) sortedLocked() []*Run {
	out := make([]*Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *MemoryRepository) evictLocked() {
	excess := len(m.runs) - m.retention
	if excess <= 0 {
		return
	}
	runs := m.sortedLocked()
	for i := len(runs) - 1; i >= 0 && excess > 0; i-- {
		if runs[i].IsTerminal() {
			delete(m.runs, runs[i].ID)
			excess--
		}
	}
}
