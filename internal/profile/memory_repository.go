package profile

import (
	"context"
	"sort"
	"sync"
)

type memoryRepository struct {
	mu          sync.RWMutex
	addresses   map[string][]Address
	preferences map[string]Preferences
	payments    map[string][]PaymentMethod
}

// NewMemoryRepository constructs an in-memory repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		addresses:   make(map[string][]Address),
		preferences: make(map[string]Preferences),
		payments:    make(map[string][]PaymentMethod),
	}
}

func (r *memoryRepository) SaveAddress(_ context.Context, a Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.addresses[a.UserID]
	for i := range list {
		if list[i].ID == a.ID {
			list[i] = a
			return nil
		}
	}
	r.addresses[a.UserID] = append(list, a)
	return nil
}

func (r *memoryRepository) ListAddresses(_ context.Context, userID string) ([]Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]Address(nil), r.addresses[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsDefault && !out[j].IsDefault })
	return out, nil
}

func (r *memoryRepository) SavePreferences(_ context.Context, p Preferences) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.AvoidMixing = append([]string(nil), p.AvoidMixing...)
	r.preferences[p.UserID] = p
	return nil
}

func (r *memoryRepository) GetPreferences(_ context.Context, userID string) (Preferences, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.preferences[userID]
	if !ok {
		return Preferences{}, ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) SavePaymentMethod(_ context.Context, m PaymentMethod) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.payments[m.UserID]
	if m.IsDefault {
		for i := range list {
			list[i].IsDefault = false
		}
	}
	r.payments[m.UserID] = append(list, m)
	return nil
}

func (r *memoryRepository) ListPaymentMethods(_ context.Context, userID string) ([]PaymentMethod, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]PaymentMethod(nil), r.payments[userID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsDefault && !out[j].IsDefault })
	return out, nil
}
