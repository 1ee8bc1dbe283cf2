package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dumaterial/materials-api/internal/domain"
)

// MaterialRepository handles persistence for study materials.
type MaterialRepository interface {
	Create(ctx context.Context, material *domain.Material) error
	Update(ctx context.Context, material *domain.Material) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Material, error)
	List(ctx context.Context, filter MaterialFilter) ([]domain.Material, error)
}

// MaterialFilter defines query params for material listing. Empty fields match everything.
type MaterialFilter struct {
	Sem       string
	Subject   string
	CreatorID string
	Limit     int
	Offset    int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Normalize clamps paging values into the supported range.
func (f MaterialFilter) Normalize() MaterialFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

const materialColumns = `id, creator_id, sem, subject, chapter, lab, note, assignment,
        uni_mid_paper_year, uni_final_paper_year, gtu_paper, contributor, assets, created_at, updated_at`

type materialRepository struct {
	pool *pgxpool.Pool
}

// NewMaterialRepository instantiates the repository.
func NewMaterialRepository(pool *pgxpool.Pool) MaterialRepository {
	return &materialRepository{pool: pool}
}

func (r *materialRepository) Create(ctx context.Context, m *domain.Material) error {
	const query = `
        INSERT INTO materials (creator_id, sem, subject, chapter, lab, note, assignment,
            uni_mid_paper_year, uni_final_paper_year, gtu_paper, contributor, assets)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		m.CreatorID,
		m.Sem,
		m.Subject,
		m.Chapter,
		m.Lab,
		m.Note,
		m.Assignment,
		m.UniMidPaperYear,
		m.UniFinalPaperYear,
		m.GTUPaper,
		m.Contributor,
		assetsOrEmpty(m.Assets),
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if hasCode(err, foreignKeyViolation) {
		return fmt.Errorf("creator %s: %w", m.CreatorID, ErrNotFound)
	}
	return err
}

func (r *materialRepository) Update(ctx context.Context, m *domain.Material) error {
	const query = `
        UPDATE materials
        SET sem=$1, subject=$2, chapter=$3, lab=$4, note=$5, assignment=$6,
            uni_mid_paper_year=$7, uni_final_paper_year=$8, gtu_paper=$9, contributor=$10,
            assets=$11, updated_at=NOW()
        WHERE id=$12
        RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		m.Sem,
		m.Subject,
		m.Chapter,
		m.Lab,
		m.Note,
		m.Assignment,
		m.UniMidPaperYear,
		m.UniFinalPaperYear,
		m.GTUPaper,
		m.Contributor,
		assetsOrEmpty(m.Assets),
		m.ID,
	).Scan(&m.UpdatedAt)
	return mapNoRows(err)
}

func (r *materialRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM materials WHERE id=$1`, id)
	if err != nil {
		return mapNoRows(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *materialRepository) GetByID(ctx context.Context, id string) (*domain.Material, error) {
	query := `SELECT ` + materialColumns + ` FROM materials WHERE id=$1`

	m, err := scanMaterial(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return m, nil
}

func (r *materialRepository) List(ctx context.Context, filter MaterialFilter) ([]domain.Material, error) {
	filter = filter.Normalize()
	query := `SELECT ` + materialColumns + ` FROM materials`
	args := []any{}
	clauses := []string{}

	if filter.Sem != "" {
		args = append(args, filter.Sem)
		clauses = append(clauses, fmt.Sprintf("sem=$%d", len(args)))
	}
	if filter.Subject != "" {
		args = append(args, filter.Subject)
		clauses = append(clauses, fmt.Sprintf("subject=$%d", len(args)))
	}
	if filter.CreatorID != "" {
		args = append(args, filter.CreatorID)
		clauses = append(clauses, fmt.Sprintf("creator_id=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapNoRows(err)
	}
	defer rows.Close()

	result := []domain.Material{}
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *m)
	}
	return result, rows.Err()
}

func scanMaterial(row pgx.Row) (*domain.Material, error) {
	var m domain.Material
	if err := row.Scan(
		&m.ID,
		&m.CreatorID,
		&m.Sem,
		&m.Subject,
		&m.Chapter,
		&m.Lab,
		&m.Note,
		&m.Assignment,
		&m.UniMidPaperYear,
		&m.UniFinalPaperYear,
		&m.GTUPaper,
		&m.Contributor,
		&m.Assets,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if m.Assets == nil {
		m.Assets = map[domain.AssetField]domain.MediaAsset{}
	}
	return &m, nil
}

func assetsOrEmpty(assets map[domain.AssetField]domain.MediaAsset) map[domain.AssetField]domain.MediaAsset {
	if assets == nil {
		return map[domain.AssetField]domain.MediaAsset{}
	}
	return assets
}
