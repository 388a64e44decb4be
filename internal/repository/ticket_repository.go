package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// ErrAssignmentConflict signals the ticket is already held by another technician.
var ErrAssignmentConflict = errors.New("ticket already assigned to another technician")

// ErrTicketClosed signals a claim attempt on a ticket that reached closed.
var ErrTicketClosed = errors.New("ticket is closed")

// ErrStaleTicket signals a guarded write whose status precondition no longer
// holds: the ticket changed between the caller's read and its write.
var ErrStaleTicket = errors.New("ticket modified concurrently")

// TicketFilter captures listing parameters.
type TicketFilter struct {
	OwnerID *string
	Limit   int
	Offset  int
}

// TicketRepository encapsulates ticket persistence. Every status-bearing
// write is a compare-and-swap on the status the caller read, so a lost race
// surfaces as ErrStaleTicket instead of silently overwriting newer state.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update overwrites the mutable columns, guarded by the status the
	// caller read the row at. Returns ErrStaleTicket when the guard misses
	// on a still-existing ticket.
	Update(ctx context.Context, ticket *domain.Ticket, expectedStatus domain.TicketStatus) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int, error)
	// AssignTechnician performs the atomic claim: the update only lands when
	// the ticket is unassigned or already held by the same technician, so two
	// concurrent claims can never both succeed.
	AssignTechnician(ctx context.Context, ticketID, technicianID string) (*domain.Ticket, error)
	// TransitionStatus moves status from one state to another in a single
	// conditional update touching nothing but the status (and, when
	// requested, the technician reference). Returns ErrStaleTicket when the
	// ticket is no longer in the from state.
	TransitionStatus(ctx context.Context, ticketID string, from, to domain.TicketStatus, clearTechnician bool) (*domain.Ticket, error)
	// SetEstimate overwrites the stored estimate.
	SetEstimate(ctx context.Context, ticketID string, estimate float64) error
	// Delete removes the ticket and its service lines.
	Delete(ctx context.Context, id string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, owner_id, technician_id, title, description, category, status, estimate, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (owner_id, technician_id, title, description, category, status, estimate)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.OwnerID,
		ticket.TechnicianID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Estimate,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket, expectedStatus domain.TicketStatus) error {
	const query = `
        UPDATE tickets SET technician_id=$1, title=$2, description=$3, category=$4,
            status=$5, estimate=$6, updated_at=NOW()
        WHERE id=$7 AND status=$8`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.TechnicianID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Status,
		ticket.Estimate,
		ticket.ID,
		expectedStatus,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// Zero rows is either a vanished ticket or a lost race on status.
		if _, getErr := r.GetByID(ctx, ticket.ID); getErr != nil {
			return getErr
		}
		return ErrStaleTicket
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return scanTicketRow(r.pool.QueryRow(ctx, query, id))
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id=$%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Count(ctx context.Context, filter TicketFilter) (int, error) {
	query := `SELECT COUNT(*) FROM tickets`
	args := []any{}
	if filter.OwnerID != nil {
		args = append(args, *filter.OwnerID)
		query += ` WHERE owner_id=$1`
	}
	var total int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *ticketRepository) AssignTechnician(ctx context.Context, ticketID, technicianID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        UPDATE tickets SET technician_id=$2, updated_at=NOW()
        WHERE id=$1 AND status <> 'closed' AND (technician_id IS NULL OR technician_id=$2)
        RETURNING %s`, ticketColumns)
	ticket, err := scanTicketRow(r.pool.QueryRow(ctx, query, ticketID, technicianID))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	// The conditional update missed: distinguish a vanished ticket, a
	// ticket that closed underneath the caller, and a lost claim race.
	current, getErr := r.GetByID(ctx, ticketID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == domain.TicketStatusClosed {
		return nil, ErrTicketClosed
	}
	return nil, ErrAssignmentConflict
}

func (r *ticketRepository) TransitionStatus(ctx context.Context, ticketID string, from, to domain.TicketStatus, clearTechnician bool) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        UPDATE tickets SET status=$3,
            technician_id=CASE WHEN $4 THEN NULL ELSE technician_id END,
            updated_at=NOW()
        WHERE id=$1 AND status=$2
        RETURNING %s`, ticketColumns)
	ticket, err := scanTicketRow(r.pool.QueryRow(ctx, query, ticketID, from, to, clearTechnician))
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, getErr := r.GetByID(ctx, ticketID); getErr != nil {
		return nil, getErr
	}
	return nil, ErrStaleTicket
}

func (r *ticketRepository) SetEstimate(ctx context.Context, ticketID string, estimate float64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE tickets SET estimate=$2, updated_at=NOW() WHERE id=$1`, ticketID, estimate)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM service_lines WHERE ticket_id=$1`, id); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func scanTicketRow(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.OwnerID,
		&ticket.TechnicianID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Status,
		&ticket.Estimate,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.OwnerID,
			&ticket.TechnicianID,
			&ticket.Title,
			&ticket.Description,
			&ticket.Category,
			&ticket.Status,
			&ticket.Estimate,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
