package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CatalogRepository persists the billable service catalog.
type CatalogRepository interface {
	Create(ctx context.Context, svc *domain.CatalogService) error
	Update(ctx context.Context, svc *domain.CatalogService) error
	GetByID(ctx context.Context, id string) (*domain.CatalogService, error)
	List(ctx context.Context, search string) ([]domain.CatalogService, error)
	Delete(ctx context.Context, id string) error
}

type catalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository instantiates repository.
func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pool: pool}
}

const catalogColumns = `id, name, amount, created_at, updated_at`

func (r *catalogRepository) Create(ctx context.Context, svc *domain.CatalogService) error {
	const query = `
        INSERT INTO catalog_services (name, amount)
        VALUES ($1, $2)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query, svc.Name, svc.Amount).
		Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
}

func (r *catalogRepository) Update(ctx context.Context, svc *domain.CatalogService) error {
	const query = `
        UPDATE catalog_services SET name=$1, amount=$2, updated_at=NOW()
        WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, svc.Name, svc.Amount, svc.ID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *catalogRepository) GetByID(ctx context.Context, id string) (*domain.CatalogService, error) {
	query := fmt.Sprintf(`SELECT %s FROM catalog_services WHERE id=$1`, catalogColumns)
	var svc domain.CatalogService
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&svc.ID,
		&svc.Name,
		&svc.Amount,
		&svc.CreatedAt,
		&svc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (r *catalogRepository) List(ctx context.Context, search string) ([]domain.CatalogService, error) {
	query := fmt.Sprintf(`SELECT %s FROM catalog_services`, catalogColumns)
	args := []any{}
	if strings.TrimSpace(search) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(search))+"%")
		query += ` WHERE LOWER(name) LIKE $1`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.CatalogService
	for rows.Next() {
		var svc domain.CatalogService
		if err := rows.Scan(
			&svc.ID,
			&svc.Name,
			&svc.Amount,
			&svc.CreatedAt,
			&svc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, svc)
	}
	return result, rows.Err()
}

func (r *catalogRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM catalog_services WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
