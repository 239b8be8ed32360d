package oracle

import (
	"context"
	"sort"
	"sync"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation for demo/testing.
type MemoryStore struct {
	overrides map[string][]*Override // bondID -> overrides, append order
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory override store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{overrides: make(map[string][]*Override)}
}

func (m *MemoryStore) Create(_ context.Context, o *Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.overrides[o.BondID] = append(m.overrides[o.BondID], &cp)
	return nil
}

func (m *MemoryStore) LatestByBond(_ context.Context, bondID string) (*Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.overrides[bondID]
	if len(list) == 0 {
		return nil, ErrNoOverride
	}
	cp := *list[len(list)-1]
	return &cp, nil
}

func (m *MemoryStore) ListByBond(_ context.Context, bondID string, limit int) ([]*Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Override
	for _, o := range m.overrides[bondID] {
		cp := *o
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
