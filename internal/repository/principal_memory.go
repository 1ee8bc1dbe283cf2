package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dumaterial/materials-api/internal/domain"
)

// InMemoryPrincipalRepository keeps principals in a map. The email check and
// the insert happen under one lock, matching the table's UNIQUE constraint.
type InMemoryPrincipalRepository struct {
	mu         sync.RWMutex
	principals map[string]domain.Principal
}

// NewInMemoryPrincipalRepository constructs an empty store.
func NewInMemoryPrincipalRepository() *InMemoryPrincipalRepository {
	return &InMemoryPrincipalRepository{principals: make(map[string]domain.Principal)}
}

func (r *InMemoryPrincipalRepository) Create(_ context.Context, principal *domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.principals {
		if existing.Email == principal.Email {
			return ErrDuplicateEmail
		}
	}
	now := time.Now().UTC()
	principal.ID = uuid.NewString()
	principal.CreatedAt = now
	principal.UpdatedAt = now
	r.principals[principal.ID] = *principal
	return nil
}

func (r *InMemoryPrincipalRepository) Update(_ context.Context, principal *domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.principals[principal.ID]; !ok {
		return ErrNotFound
	}
	for id, existing := range r.principals {
		if id != principal.ID && existing.Email == principal.Email {
			return ErrDuplicateEmail
		}
	}
	principal.UpdatedAt = time.Now().UTC()
	r.principals[principal.ID] = *principal
	return nil
}

func (r *InMemoryPrincipalRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.principals[id]; !ok {
		return ErrNotFound
	}
	delete(r.principals, id)
	return nil
}

func (r *InMemoryPrincipalRepository) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	principal, ok := r.principals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &principal, nil
}

func (r *InMemoryPrincipalRepository) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, principal := range r.principals {
		if principal.Email == email {
			p := principal
			return &p, nil
		}
	}
	return nil, ErrNotFound
}

// Len returns the number of stored principals.
func (r *InMemoryPrincipalRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.principals)
}
