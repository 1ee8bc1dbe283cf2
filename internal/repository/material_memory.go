package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dumaterial/materials-api/internal/domain"
)

// InMemoryMaterialRepository is a map-backed MaterialRepository.
type InMemoryMaterialRepository struct {
	mu        sync.RWMutex
	materials map[string]domain.Material
}

func NewInMemoryMaterialRepository() *InMemoryMaterialRepository {
	return &InMemoryMaterialRepository{materials: make(map[string]domain.Material)}
}

func (r *InMemoryMaterialRepository) Create(_ context.Context, m *domain.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	m.ID = uuid.NewString()
	m.Assets = assetsOrEmpty(m.Assets)
	m.CreatedAt = now
	m.UpdatedAt = now
	r.materials[m.ID] = copyMaterial(*m)
	return nil
}

func (r *InMemoryMaterialRepository) Update(_ context.Context, m *domain.Material) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.materials[m.ID]; !ok {
		return ErrNotFound
	}
	m.UpdatedAt = time.Now().UTC()
	r.materials[m.ID] = copyMaterial(*m)
	return nil
}

func (r *InMemoryMaterialRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.materials[id]; !ok {
		return ErrNotFound
	}
	delete(r.materials, id)
	return nil
}

func (r *InMemoryMaterialRepository) GetByID(_ context.Context, id string) (*domain.Material, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.materials[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := copyMaterial(m)
	return &out, nil
}

func (r *InMemoryMaterialRepository) List(_ context.Context, filter MaterialFilter) ([]domain.Material, error) {
	filter = filter.Normalize()
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []domain.Material{}
	for _, m := range r.materials {
		if filter.Sem != "" && m.Sem != filter.Sem {
			continue
		}
		if filter.Subject != "" && m.Subject != filter.Subject {
			continue
		}
		if filter.CreatorID != "" && m.CreatorID != filter.CreatorID {
			continue
		}
		result = append(result, copyMaterial(m))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset >= len(result) {
		return []domain.Material{}, nil
	}
	result = result[filter.Offset:]
	if len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func copyMaterial(m domain.Material) domain.Material {
	assets := make(map[domain.AssetField]domain.MediaAsset, len(m.Assets))
	for k, v := range m.Assets {
		assets[k] = v
	}
	m.Assets = assets
	return m
}

// InMemoryPurchaseRepository is a map-backed PurchaseRepository. It does not
// check that the material exists; callers resolve it first.
type InMemoryPurchaseRepository struct {
	mu        sync.Mutex
	purchases map[[2]string]domain.Purchase
}

func NewInMemoryPurchaseRepository() *InMemoryPurchaseRepository {
	return &InMemoryPurchaseRepository{purchases: make(map[[2]string]domain.Purchase)}
}

func (r *InMemoryPurchaseRepository) Create(_ context.Context, p *domain.Purchase) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := [2]string{p.UserID, p.MaterialID}
	if existing, ok := r.purchases[key]; ok {
		*p = existing
		return false, nil
	}
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	r.purchases[key] = *p
	return true, nil
}

func (r *InMemoryPurchaseRepository) ListByUser(_ context.Context, userID string) ([]domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := []domain.Purchase{}
	for _, p := range r.purchases {
		if p.UserID == userID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
