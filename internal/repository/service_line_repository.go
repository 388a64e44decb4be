package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ServiceLineRepository persists billable lines attached to tickets.
type ServiceLineRepository interface {
	Create(ctx context.Context, line *domain.ServiceLine) error
	GetByID(ctx context.Context, id string) (*domain.ServiceLine, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.ServiceLine, error)
	SumByTicket(ctx context.Context, ticketID string) (float64, error)
	Delete(ctx context.Context, id string) error
}

type serviceLineRepository struct {
	pool *pgxpool.Pool
}

// NewServiceLineRepository instantiates repository.
func NewServiceLineRepository(pool *pgxpool.Pool) ServiceLineRepository {
	return &serviceLineRepository{pool: pool}
}

func (r *serviceLineRepository) Create(ctx context.Context, line *domain.ServiceLine) error {
	const query = `
        INSERT INTO service_lines (ticket_id, catalog_service_id, name, amount)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		line.TicketID,
		line.CatalogServiceID,
		line.Name,
		line.Amount,
	).Scan(&line.ID, &line.CreatedAt)
}

func (r *serviceLineRepository) GetByID(ctx context.Context, id string) (*domain.ServiceLine, error) {
	const query = `
        SELECT id, ticket_id, catalog_service_id, name, amount, created_at
        FROM service_lines WHERE id=$1`
	var line domain.ServiceLine
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&line.ID,
		&line.TicketID,
		&line.CatalogServiceID,
		&line.Name,
		&line.Amount,
		&line.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *serviceLineRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.ServiceLine, error) {
	const query = `
        SELECT id, ticket_id, catalog_service_id, name, amount, created_at
        FROM service_lines WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ServiceLine
	for rows.Next() {
		var line domain.ServiceLine
		if err := rows.Scan(
			&line.ID,
			&line.TicketID,
			&line.CatalogServiceID,
			&line.Name,
			&line.Amount,
			&line.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, line)
	}
	return result, rows.Err()
}

func (r *serviceLineRepository) SumByTicket(ctx context.Context, ticketID string) (float64, error) {
	var total float64
	if err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM service_lines WHERE ticket_id=$1`,
		ticketID,
	).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *serviceLineRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM service_lines WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
