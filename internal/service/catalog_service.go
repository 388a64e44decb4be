package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// CatalogService manages the billable service catalog and the service lines
// that link catalog entries to tickets, driving ticket estimates.
type CatalogService struct {
	catalog repository.CatalogRepository
	lines   repository.ServiceLineRepository
	tickets repository.TicketRepository
}

// CatalogDependencies bundles repositories for the catalog service.
type CatalogDependencies struct {
	CatalogRepo repository.CatalogRepository
	LineRepo    repository.ServiceLineRepository
	TicketRepo  repository.TicketRepository
}

// CatalogInput describes a catalog entry payload.
type CatalogInput struct {
	Name   string
	Amount float64
}

// NewCatalogService constructs the service.
func NewCatalogService(deps CatalogDependencies) *CatalogService {
	return &CatalogService{
		catalog: deps.CatalogRepo,
		lines:   deps.LineRepo,
		tickets: deps.TicketRepo,
	}
}

// List returns catalog entries visible to any authenticated caller.
func (s *CatalogService) List(ctx context.Context, principal auth.Principal, search string) ([]domain.CatalogService, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, err
	}
	services, err := s.catalog.List(ctx, search)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return services, nil
}

// Create adds a catalog entry. Admin only.
func (s *CatalogService) Create(ctx context.Context, principal auth.Principal, input CatalogInput) (*domain.CatalogService, error) {
	if err := auth.Authorize(principal, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validateCatalogInput(input); err != nil {
		return nil, err
	}
	svc := &domain.CatalogService{
		Name:   strings.TrimSpace(input.Name),
		Amount: input.Amount,
	}
	if err := s.catalog.Create(ctx, svc); err != nil {
		return nil, apperrors.MapError(err)
	}
	return svc, nil
}

// Update edits a catalog entry. Admin only.
func (s *CatalogService) Update(ctx context.Context, principal auth.Principal, id string, input CatalogInput) (*domain.CatalogService, error) {
	if err := auth.Authorize(principal, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := validateCatalogInput(input); err != nil {
		return nil, err
	}
	svc, err := s.catalog.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("service", map[string]any{"service_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	svc.Name = strings.TrimSpace(input.Name)
	svc.Amount = input.Amount
	if err := s.catalog.Update(ctx, svc); err != nil {
		return nil, apperrors.MapError(err)
	}
	return svc, nil
}

// Delete removes a catalog entry. Admin only.
func (s *CatalogService) Delete(ctx context.Context, principal auth.Principal, id string) error {
	if err := auth.Authorize(principal, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.catalog.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("service", map[string]any{"service_id": id})
		}
		return apperrors.MapError(err)
	}
	return nil
}

// AddServiceLine links a catalog entry to a ticket and recomputes the
// estimate. Allowed for admins and the assigned technician; this is the
// catalog-linkage path through which estimates change.
func (s *CatalogService) AddServiceLine(ctx context.Context, principal auth.Principal, ticketID, catalogServiceID string) (*domain.ServiceLine, error) {
	ticket, err := s.requireEstimateAccess(ctx, principal, ticketID)
	if err != nil {
		return nil, err
	}

	svc, err := s.catalog.GetByID(ctx, catalogServiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("service", map[string]any{"service_id": catalogServiceID})
		}
		return nil, apperrors.MapError(err)
	}

	line := &domain.ServiceLine{
		TicketID:         ticket.ID,
		CatalogServiceID: svc.ID,
		Name:             svc.Name,
		Amount:           svc.Amount,
	}
	if err := s.lines.Create(ctx, line); err != nil {
		return nil, apperrors.MapError(err)
	}
	if err := s.recomputeEstimate(ctx, ticket.ID); err != nil {
		return nil, err
	}
	return line, nil
}

// RemoveServiceLine detaches a line and recomputes the estimate.
func (s *CatalogService) RemoveServiceLine(ctx context.Context, principal auth.Principal, ticketID, lineID string) error {
	ticket, err := s.requireEstimateAccess(ctx, principal, ticketID)
	if err != nil {
		return err
	}

	line, err := s.lines.GetByID(ctx, lineID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("service line", map[string]any{"line_id": lineID})
		}
		return apperrors.MapError(err)
	}
	if line.TicketID != ticket.ID {
		return apperrors.NewNotFound("service line", map[string]any{"line_id": lineID})
	}

	if err := s.lines.Delete(ctx, lineID); err != nil {
		return apperrors.MapError(err)
	}
	return s.recomputeEstimate(ctx, ticket.ID)
}

// ListServiceLines returns the lines attached to a ticket.
func (s *CatalogService) ListServiceLines(ctx context.Context, principal auth.Principal, ticketID string) ([]domain.ServiceLine, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, err
	}
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if principal.Role == domain.RoleCustomer && ticket.OwnerID != principal.UserID {
		return nil, apperrors.NewForbidden("access denied")
	}
	lines, err := s.lines.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return lines, nil
}

func (s *CatalogService) requireEstimateAccess(ctx context.Context, principal auth.Principal, ticketID string) (*domain.Ticket, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, err
	}
	ticket, err := s.fetchTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, domain.RoleTech, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if principal.Role == domain.RoleTech && !ticket.AssignedTo(principal.UserID) {
		return nil, apperrors.NewForbidden("ticket is not assigned to caller")
	}
	return ticket, nil
}

func (s *CatalogService) fetchTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *CatalogService) recomputeEstimate(ctx context.Context, ticketID string) error {
	total, err := s.lines.SumByTicket(ctx, ticketID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if err := s.tickets.SetEstimate(ctx, ticketID, total); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func validateCatalogInput(input CatalogInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return apperrors.NewValidationError("name is required", nil)
	}
	if input.Amount < 0 {
		return apperrors.NewValidationError("amount must be >= 0", nil)
	}
	return nil
}
