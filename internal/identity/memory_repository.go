package identity

import (
	"context"
	"strings"
	"sync"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory user store.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, user.Email) || (user.Phone != "" && existing.Phone == user.Phone) {
			return ErrUserExists
		}
	}
	if _, exists := r.users[user.ID]; exists {
		return ErrUserExists
	}
	r.users[user.ID] = user
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByIdentifier(_ context.Context, identifier string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, identifier) || (user.Phone != "" && user.Phone == identifier) {
			return user, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (r *memoryRepository) Update(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return ErrUserNotFound
	}
	for id, existing := range r.users {
		if id != user.ID && strings.EqualFold(existing.Email, user.Email) {
			return ErrUserExists
		}
	}
	r.users[user.ID] = user
	return nil
}
