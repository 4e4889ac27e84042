package orders

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu     sync.RWMutex
	orders map[string]Order
}

// NewMemoryRepository returns an in-memory order repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{orders: make(map[string]Order)}
}

func (r *memoryRepository) Create(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return ErrDuplicateID
	}
	o.Items = append([]Line(nil), o.Items...)
	r.orders[o.ID] = o
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return withAmounts(o), nil
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, withAmounts(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id string, status Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return ErrNotFound
	}
	o.Status = status
	o.UpdatedAt = at
	r.orders[id] = o
	return nil
}
