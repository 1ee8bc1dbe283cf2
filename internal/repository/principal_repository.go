package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dumaterial/materials-api/internal/domain"
)

// PrincipalRepository defines persistence access for one principal table.
type PrincipalRepository interface {
	Create(ctx context.Context, principal *domain.Principal) error
	Update(ctx context.Context, principal *domain.Principal) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)
}

// principalTables maps each realm to its table. Admins and users never share rows.
var principalTables = map[domain.Role]string{
	domain.RoleAdmin: "admins",
	domain.RoleUser:  "users",
}

type principalRepository struct {
	pool  *pgxpool.Pool
	table string
}

// NewPrincipalRepository returns a Postgres-backed implementation for role's table.
func NewPrincipalRepository(pool *pgxpool.Pool, role domain.Role) (PrincipalRepository, error) {
	table, ok := principalTables[role]
	if !ok {
		return nil, fmt.Errorf("no principal table for role %q", role)
	}
	return &principalRepository{pool: pool, table: table}, nil
}

func (r *principalRepository) Create(ctx context.Context, principal *domain.Principal) error {
	query := `
        INSERT INTO ` + r.table + ` (first_name, last_name, email, password_hash)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		principal.FirstName,
		principal.LastName,
		principal.Email,
		principal.PasswordHash,
	).Scan(&principal.ID, &principal.CreatedAt, &principal.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

func (r *principalRepository) Update(ctx context.Context, principal *domain.Principal) error {
	query := `
        UPDATE ` + r.table + ` SET first_name=$1, last_name=$2, email=$3, password_hash=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		principal.FirstName,
		principal.LastName,
		principal.Email,
		principal.PasswordHash,
		principal.ID,
	).Scan(&principal.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return mapNoRows(err)
}

func (r *principalRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM `+r.table+` WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *principalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	query := `
        SELECT id, first_name, last_name, email, password_hash, created_at, updated_at
        FROM ` + r.table + ` WHERE id=$1`

	return r.scanOne(ctx, query, id)
}

func (r *principalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	query := `
        SELECT id, first_name, last_name, email, password_hash, created_at, updated_at
        FROM ` + r.table + ` WHERE email=$1`

	return r.scanOne(ctx, query, email)
}

func (r *principalRepository) scanOne(ctx context.Context, query string, arg any) (*domain.Principal, error) {
	var principal domain.Principal
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&principal.ID,
		&principal.FirstName,
		&principal.LastName,
		&principal.Email,
		&principal.PasswordHash,
		&principal.CreatedAt,
		&principal.UpdatedAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &principal, nil
}
