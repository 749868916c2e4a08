package session

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps attempts in memory, for tests and single-node demos.
type MemoryStore struct {
	attempts map[string]*Attempt
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]*Attempt)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.attempts[a.ID]; ok {
		return ErrDuplicateAttempt
	}
	cp := *a
	m.attempts[a.ID] = &cp
	return nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id string) (*Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, limit int, opts ...ListOption) ([]*Attempt, error) {
	o := applyListOpts(opts)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Attempt
	for _, a := range m.attempts {
		if o.sessionID != "" && a.SessionID != o.sessionID {
			continue
		}
		if o.cursor != nil && !o.cursor.Before(a.CreatedAt, a.ID) {
			continue
		}

		cp := *a
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
