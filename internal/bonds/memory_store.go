package bonds

import (
	"context"
	"sort"
	"sync"
)

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store implementation for demo/testing.
type MemoryStore struct {
	bonds     map[string]*Bond
	purchases map[string]*Purchase
	listings  map[string]*SaleListing
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory bond store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bonds:     make(map[string]*Bond),
		purchases: make(map[string]*Purchase),
		listings:  make(map[string]*SaleListing),
	}
}

// ---------- bonds ----------

func (m *MemoryStore) CreateBond(_ context.Context, b *Bond) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bonds[b.ID] = &cp
	return nil
}

func (m *MemoryStore) GetBond(_ context.Context, id string) (*Bond, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bonds[id]
	if !ok {
		return nil, ErrBondNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) UpdateBond(_ context.Context, b *Bond) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bonds[b.ID]; !ok {
		return ErrBondNotFound
	}
	cp := *b
	m.bonds[b.ID] = &cp
	return nil
}

func (m *MemoryStore) ListBonds(_ context.Context, status ApprovalStatus) ([]*Bond, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Bond
	for _, b := range m.bonds {
		if status == "" || b.ApprovalStatus == status {
			cp := *b
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ---------- purchases ----------

func (m *MemoryStore) CreatePurchase(_ context.Context, p *Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.purchases[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPurchase(_ context.Context, id string) (*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.purchases[id]
	if !ok {
		return nil, ErrPurchaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) UpdatePurchase(_ context.Context, p *Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.purchases[p.ID]; !ok {
		return ErrPurchaseNotFound
	}
	cp := *p
	m.purchases[p.ID] = &cp
	return nil
}

func (m *MemoryStore) ListPurchasesByInvestor(_ context.Context, investorID string) ([]*Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Purchase
	for _, p := range m.purchases {
		if p.InvestorID == investorID {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// ---------- listings ----------

func (m *MemoryStore) CreateListing(_ context.Context, l *SaleListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.listings[l.ID] = &cp
	return nil
}

func (m *MemoryStore) GetListing(_ context.Context, id string) (*SaleListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.listings[id]
	if !ok {
		return nil, ErrListingNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MemoryStore) UpdateListing(_ context.Context, l *SaleListing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[l.ID]; !ok {
		return ErrListingNotFound
	}
	cp := *l
	m.listings[l.ID] = &cp
	return nil
}

func (m *MemoryStore) ListOpenListings(_ context.Context) ([]*SaleListing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*SaleListing
	for _, l := range m.listings {
		if l.Status == ListingOpen {
			cp := *l
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
