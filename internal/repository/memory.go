package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// In-memory repositories backing local development when no POSTGRES_DSN is
// configured, and the service-level tests. They mirror the Postgres
// implementations' semantics: pgx.ErrNoRows for missing rows,
// ErrAssignmentConflict when the technician compare-and-swap loses, and
// ErrStaleTicket when a status-guarded write misses.

// MemoryTicketRepository is a mutex-guarded TicketRepository.
type MemoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	lines   *MemoryServiceLineRepository
}

// NewMemoryTicketRepository builds an empty repository. The line repository
// is optional and only used to cascade deletes.
func NewMemoryTicketRepository(lines *MemoryServiceLineRepository) *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]*domain.Ticket),
		lines:   lines,
	}
}

func (r *MemoryTicketRepository) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *MemoryTicketRepository) Update(_ context.Context, ticket *domain.Ticket, expectedStatus domain.TicketStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Status != expectedStatus {
		return ErrStaleTicket
	}
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	r.tickets[ticket.ID] = &clone
	return nil
}

func (r *MemoryTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (r *MemoryTicketRepository) List(_ context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := r.match(filter)
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *MemoryTicketRepository) Count(_ context.Context, filter TicketFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.match(filter)), nil
}

func (r *MemoryTicketRepository) match(filter TicketFilter) []domain.Ticket {
	var matched []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.OwnerID != nil && ticket.OwnerID != *filter.OwnerID {
			continue
		}
		matched = append(matched, *ticket)
	}
	return matched
}

func (r *MemoryTicketRepository) AssignTechnician(_ context.Context, ticketID, technicianID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, ErrTicketClosed
	}
	if ticket.TechnicianID != nil && *ticket.TechnicianID != technicianID {
		return nil, ErrAssignmentConflict
	}
	tech := technicianID
	ticket.TechnicianID = &tech
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	return &clone, nil
}

func (r *MemoryTicketRepository) TransitionStatus(_ context.Context, ticketID string, from, to domain.TicketStatus, clearTechnician bool) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if ticket.Status != from {
		return nil, ErrStaleTicket
	}
	ticket.Status = to
	if clearTechnician {
		ticket.TechnicianID = nil
	}
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	return &clone, nil
}

func (r *MemoryTicketRepository) SetEstimate(_ context.Context, ticketID string, estimate float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.Estimate = estimate
	ticket.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryTicketRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	if _, ok := r.tickets[id]; !ok {
		r.mu.Unlock()
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	r.mu.Unlock()

	if r.lines != nil {
		r.lines.deleteByTicket(id)
	}
	return nil
}

// deleteByOwner removes all tickets owned by the user and returns their ids.
func (r *MemoryTicketRepository) deleteByOwner(ownerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, ticket := range r.tickets {
		if ticket.OwnerID == ownerID {
			removed = append(removed, id)
			delete(r.tickets, id)
		}
	}
	return removed
}

// unassignTechnician applies the technician-deletion cascade.
func (r *MemoryTicketRepository) unassignTechnician(technicianID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.TechnicianID == nil || *ticket.TechnicianID != technicianID {
			continue
		}
		ticket.TechnicianID = nil
		if ticket.Status != domain.TicketStatusClosed {
			ticket.Status = domain.TicketStatusOpen
		}
		ticket.UpdatedAt = time.Now()
	}
}

// MemoryUserRepository is a mutex-guarded UserRepository.
type MemoryUserRepository struct {
	mu      sync.Mutex
	users   map[string]*domain.User
	tickets *MemoryTicketRepository
	lines   *MemoryServiceLineRepository
}

// NewMemoryUserRepository builds an empty repository. Ticket and line
// repositories are optional and only used for delete cascades.
func NewMemoryUserRepository(tickets *MemoryTicketRepository, lines *MemoryServiceLineRepository) *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]*domain.User),
		tickets: tickets,
		lines:   lines,
	}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryUserRepository) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	user.UpdatedAt = time.Now()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryUserRepository) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := r.matchUsers(filter)
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *MemoryUserRepository) Count(_ context.Context, filter UserFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matchUsers(filter)), nil
}

func (r *MemoryUserRepository) matchUsers(filter UserFilter) []domain.User {
	var matched []domain.User
	for _, user := range r.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.Search != nil && strings.TrimSpace(*filter.Search) != "" {
			needle := strings.ToLower(strings.TrimSpace(*filter.Search))
			if !strings.Contains(strings.ToLower(user.Name), needle) &&
				!strings.Contains(strings.ToLower(user.Email), needle) {
				continue
			}
		}
		matched = append(matched, *user)
	}
	return matched
}

func (r *MemoryUserRepository) DeleteCascade(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	if _, ok := r.users[user.ID]; !ok {
		r.mu.Unlock()
		return pgx.ErrNoRows
	}
	delete(r.users, user.ID)
	r.mu.Unlock()

	switch user.Role {
	case domain.RoleCustomer:
		if r.tickets != nil {
			removed := r.tickets.deleteByOwner(user.ID)
			if r.lines != nil {
				for _, ticketID := range removed {
					r.lines.deleteByTicket(ticketID)
				}
			}
		}
	case domain.RoleTech:
		if r.tickets != nil {
			r.tickets.unassignTechnician(user.ID)
		}
	}
	return nil
}

// MemoryCatalogRepository is a mutex-guarded CatalogRepository.
type MemoryCatalogRepository struct {
	mu       sync.Mutex
	services map[string]*domain.CatalogService
}

// NewMemoryCatalogRepository builds an empty repository.
func NewMemoryCatalogRepository() *MemoryCatalogRepository {
	return &MemoryCatalogRepository{services: make(map[string]*domain.CatalogService)}
}

func (r *MemoryCatalogRepository) Create(_ context.Context, svc *domain.CatalogService) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc.ID = uuid.NewString()
	svc.CreatedAt = time.Now()
	svc.UpdatedAt = svc.CreatedAt
	clone := *svc
	r.services[svc.ID] = &clone
	return nil
}

func (r *MemoryCatalogRepository) Update(_ context.Context, svc *domain.CatalogService) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[svc.ID]; !ok {
		return pgx.ErrNoRows
	}
	svc.UpdatedAt = time.Now()
	clone := *svc
	r.services[svc.ID] = &clone
	return nil
}

func (r *MemoryCatalogRepository) GetByID(_ context.Context, id string) (*domain.CatalogService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *svc
	return &clone, nil
}

func (r *MemoryCatalogRepository) List(_ context.Context, search string) ([]domain.CatalogService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(search))
	var matched []domain.CatalogService
	for _, svc := range r.services {
		if needle != "" && !strings.Contains(strings.ToLower(svc.Name), needle) {
			continue
		}
		matched = append(matched, *svc)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Name < matched[j].Name
	})
	return matched, nil
}

func (r *MemoryCatalogRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.services, id)
	return nil
}

// MemoryServiceLineRepository is a mutex-guarded ServiceLineRepository.
type MemoryServiceLineRepository struct {
	mu    sync.Mutex
	lines map[string]*domain.ServiceLine
}

// NewMemoryServiceLineRepository builds an empty repository.
func NewMemoryServiceLineRepository() *MemoryServiceLineRepository {
	return &MemoryServiceLineRepository{lines: make(map[string]*domain.ServiceLine)}
}

func (r *MemoryServiceLineRepository) Create(_ context.Context, line *domain.ServiceLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	line.ID = uuid.NewString()
	line.CreatedAt = time.Now()
	clone := *line
	r.lines[line.ID] = &clone
	return nil
}

func (r *MemoryServiceLineRepository) GetByID(_ context.Context, id string) (*domain.ServiceLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line, ok := r.lines[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *line
	return &clone, nil
}

func (r *MemoryServiceLineRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.ServiceLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.ServiceLine
	for _, line := range r.lines {
		if line.TicketID == ticketID {
			matched = append(matched, *line)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	return matched, nil
}

func (r *MemoryServiceLineRepository) SumByTicket(_ context.Context, ticketID string) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, line := range r.lines {
		if line.TicketID == ticketID {
			total += line.Amount
		}
	}
	return total, nil
}

func (r *MemoryServiceLineRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lines[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.lines, id)
	return nil
}

func (r *MemoryServiceLineRepository) deleteByTicket(ticketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, line := range r.lines {
		if line.TicketID == ticketID {
			delete(r.lines, id)
		}
	}
}
