package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryRepository struct {
	mu     sync.RWMutex
	byID   map[string]Character
	byName map[string]string
}

// NewMemoryRepository builds an in-memory character store for development
// and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: make(map[string]Character), byName: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, ch Character) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(ch.Name)
	if _, exists := r.byName[key]; exists {
		return ErrNameTaken
	}
	r.byID[ch.ID] = ch
	r.byName[key] = ch.ID
	return nil
}

func (r *memoryRepository) FindByName(_ context.Context, name string) (Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return Character{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (Character, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byID[id]
	if !ok {
		return Character{}, ErrNotFound
	}
	return ch, nil
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	ch.TokenVersion = version
	r.byID[id] = ch
	return nil
}

func (r *memoryRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	ch.LastLogin = &at
	r.byID[id] = ch
	return nil
}
