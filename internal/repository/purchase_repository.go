package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dumaterial/materials-api/internal/domain"
)

// PurchaseRepository records which users unlocked which materials.
type PurchaseRepository interface {
	// Create stores the purchase unless the pair already exists. created
	// reports whether a new row was written; p always ends up populated.
	Create(ctx context.Context, p *domain.Purchase) (created bool, err error)
	ListByUser(ctx context.Context, userID string) ([]domain.Purchase, error)
}

type purchaseRepository struct {
	pool *pgxpool.Pool
}

// NewPurchaseRepository constructs repository.
func NewPurchaseRepository(pool *pgxpool.Pool) PurchaseRepository {
	return &purchaseRepository{pool: pool}
}

func (r *purchaseRepository) Create(ctx context.Context, p *domain.Purchase) (bool, error) {
	const insert = `
        INSERT INTO purchases (user_id, material_id)
        VALUES ($1,$2)
        ON CONFLICT (user_id, material_id) DO NOTHING
        RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, insert, p.UserID, p.MaterialID).Scan(&p.ID, &p.CreatedAt)
	switch {
	case err == nil:
		return true, nil
	case hasCode(err, foreignKeyViolation), hasCode(err, invalidTextRepresentation):
		return false, ErrNotFound
	case !errors.Is(err, pgx.ErrNoRows):
		return false, err
	}

	const existing = `
        SELECT id, created_at FROM purchases
        WHERE user_id=$1 AND material_id=$2`
	if err := r.pool.QueryRow(ctx, existing, p.UserID, p.MaterialID).Scan(&p.ID, &p.CreatedAt); err != nil {
		return false, mapNoRows(err)
	}
	return false, nil
}

func (r *purchaseRepository) ListByUser(ctx context.Context, userID string) ([]domain.Purchase, error) {
	const query = `
        SELECT id, user_id, material_id, created_at
        FROM purchases WHERE user_id=$1
        ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapNoRows(err)
	}
	defer rows.Close()

	result := []domain.Purchase{}
	for rows.Next() {
		var p domain.Purchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.MaterialID, &p.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
