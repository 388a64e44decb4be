package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// TicketService is the lifecycle engine: it enforces legal status
// transitions, assignment exclusivity and role-gated eligibility before any
// mutation reaches the repository.
type TicketService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Category    domain.TicketCategory
	Estimate    *float64
}

// AdminTicketUpdate describes the admin-only partial overwrite. Nil fields
// are left untouched; ClearTechnician drops the assignment.
type AdminTicketUpdate struct {
	Title           *string
	Description     *string
	Category        *domain.TicketCategory
	Status          *domain.TicketStatus
	TechnicianID    *string
	ClearTechnician bool
	Estimate        *float64
}

// Pagination describes a page of listing results.
type Pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"perPage"`
	TotalRecords int `json:"totalRecords"`
	TotalPages   int `json:"totalPages"`
}

const (
	defaultPerPage = 10
	maxPerPage     = 100
)

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
	}
}

// Create opens a new ticket for the calling customer.
func (s *TicketService) Create(ctx context.Context, principal auth.Principal, input TicketCreateInput) (*domain.Ticket, error) {
	if err := auth.Authorize(principal, domain.RoleCustomer); err != nil {
		return nil, err
	}
	if !domain.ValidCategory(input.Category) {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": input.Category})
	}

	estimate := 0.0
	if input.Estimate != nil {
		if *input.Estimate < 0 {
			return nil, apperrors.NewValidationError("estimate must be >= 0", nil)
		}
		estimate = *input.Estimate
	}

	ticket := &domain.Ticket{
		OwnerID:     principal.UserID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Category:    input.Category,
		Status:      domain.TicketStatusOpen,
		Estimate:    estimate,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actorFor(principal),
		Payload: events.TicketCreatedPayload{
			Category: ticket.Category,
			Title:    ticket.Title,
			Estimate: ticket.Estimate,
		},
	})
	return ticket, nil
}

// List returns a page of tickets visible to the caller: customers see their
// own, technicians and administrators see everything.
func (s *TicketService) List(ctx context.Context, principal auth.Principal, page, perPage int) ([]domain.Ticket, Pagination, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, Pagination{}, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	filter := repository.TicketFilter{
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	if principal.Role == domain.RoleCustomer {
		owner := principal.UserID
		filter.OwnerID = &owner
	}

	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperrors.MapError(err)
	}
	total, err := s.tickets.Count(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperrors.MapError(err)
	}

	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	return tickets, Pagination{
		Page:         page,
		PerPage:      perPage,
		TotalRecords: total,
		TotalPages:   totalPages,
	}, nil
}

// Get fetches one ticket. Customers only reach their own; technicians may
// inspect any ticket (an open one must be readable before it can be claimed).
func (s *TicketService) Get(ctx context.Context, principal auth.Principal, ticketID string) (*domain.Ticket, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, err
	}
	ticket, err := s.fetch(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if principal.Role == domain.RoleCustomer && ticket.OwnerID != principal.UserID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// AssignSelf claims the ticket for the calling technician. The claim is a
// repository-level compare-and-swap, so of two concurrent callers exactly one
// wins and the other receives a conflict.
func (s *TicketService) AssignSelf(ctx context.Context, principal auth.Principal, ticketID string) (*domain.Ticket, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, err
	}

	current, err := s.fetch(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, domain.RoleTech); err != nil {
		return nil, err
	}
	if current.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewInvalidTransition("closed tickets cannot be claimed", map[string]any{"ticket_id": ticketID})
	}

	ticket, err := s.tickets.AssignTechnician(ctx, ticketID, principal.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrTicketClosed) {
			return nil, apperrors.NewInvalidTransition("closed tickets cannot be claimed", map[string]any{"ticket_id": ticketID})
		}
		if errors.Is(err, repository.ErrAssignmentConflict) {
			return nil, apperrors.NewConflict("ticket already assigned", map[string]any{"ticket_id": ticketID})
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    actorFor(principal),
		Payload:  events.TicketAssignedPayload{TechnicianID: principal.UserID},
	})
	return ticket, nil
}

// Transition applies a lifecycle action using the legality matrix. Checks run
// in a fixed order: existence, role, source state, assignee ownership.
func (s *TicketService) Transition(ctx context.Context, principal auth.Principal, ticketID string, action domain.LifecycleAction) (*domain.Ticket, error) {
	rule, ok := domain.RuleFor(action)
	if !ok {
		return nil, apperrors.NewValidationError("unknown action", map[string]any{"action": action})
	}

	ticket, err := s.fetch(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !rule.AllowsRole(principal.Role) {
		return nil, apperrors.NewForbidden("role may not perform this action")
	}
	if ticket.Status != rule.From {
		return nil, apperrors.NewInvalidTransition("illegal source state", map[string]any{
			"action": action,
			"status": ticket.Status,
		})
	}
	if rule.NeedsTechnician && ticket.TechnicianID == nil {
		return nil, apperrors.NewInvalidTransition("ticket has no technician", map[string]any{"action": action})
	}
	if rule.NeedsAssignment && principal.Role == domain.RoleTech && !ticket.AssignedTo(principal.UserID) {
		return nil, apperrors.NewForbidden("ticket is assigned to another technician")
	}

	next := rule.Next(ticket)
	clearTechnician := next == domain.TicketStatusOpen
	updated, err := s.tickets.TransitionStatus(ctx, ticket.ID, rule.From, next, clearTechnician)
	if err != nil {
		if errors.Is(err, repository.ErrStaleTicket) {
			return nil, apperrors.NewConflict("ticket changed concurrently", map[string]any{"ticket_id": ticketID})
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	ticket = updated

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actorFor(principal),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: rule.From,
			NewStatus: ticket.Status,
			Action:    action,
		},
	})
	return ticket, nil
}

// AdminUpdate overwrites ticket fields, bypassing assignment exclusivity.
// The one rule it still honors: in_progress always carries a technician.
func (s *TicketService) AdminUpdate(ctx context.Context, principal auth.Principal, ticketID string, update AdminTicketUpdate) (*domain.Ticket, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, err
	}

	ticket, err := s.fetch(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(principal, domain.RoleAdmin); err != nil {
		return nil, err
	}
	fetchedStatus := ticket.Status

	var fields []string
	if update.Title != nil {
		ticket.Title = strings.TrimSpace(*update.Title)
		fields = append(fields, "title")
	}
	if update.Description != nil {
		ticket.Description = strings.TrimSpace(*update.Description)
		fields = append(fields, "description")
	}
	if update.Category != nil {
		if !domain.ValidCategory(*update.Category) {
			return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": *update.Category})
		}
		ticket.Category = *update.Category
		fields = append(fields, "category")
	}
	if update.ClearTechnician {
		ticket.TechnicianID = nil
		fields = append(fields, "technician_id")
	} else if update.TechnicianID != nil {
		tech := *update.TechnicianID
		ticket.TechnicianID = &tech
		fields = append(fields, "technician_id")
	}
	if update.Status != nil {
		if !domain.ValidStatus(*update.Status) {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": *update.Status})
		}
		ticket.Status = *update.Status
		fields = append(fields, "status")
	}
	if update.Estimate != nil {
		if *update.Estimate < 0 {
			return nil, apperrors.NewValidationError("estimate must be >= 0", nil)
		}
		ticket.Estimate = *update.Estimate
		fields = append(fields, "estimate")
	}

	if ticket.Status == domain.TicketStatusInProgress && ticket.TechnicianID == nil {
		return nil, apperrors.NewInvalidTransition("in_progress requires a technician", nil)
	}

	if err := s.tickets.Update(ctx, ticket, fetchedStatus); err != nil {
		if errors.Is(err, repository.ErrStaleTicket) {
			return nil, apperrors.NewConflict("ticket changed concurrently", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Actor:    actorFor(principal),
		Payload:  events.TicketUpdatedPayload{Fields: fields},
	})
	return ticket, nil
}

// Delete removes a ticket and its service lines. Admin only.
func (s *TicketService) Delete(ctx context.Context, principal auth.Principal, ticketID string) error {
	if err := auth.Authorize(principal); err != nil {
		return err
	}
	if _, err := s.fetch(ctx, ticketID); err != nil {
		return err
	}
	if err := auth.Authorize(principal, domain.RoleAdmin); err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticketID,
		Actor:    actorFor(principal),
	})
	return nil
}

func (s *TicketService) fetch(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actorFor(principal auth.Principal) events.Actor {
	return events.Actor{UserID: principal.UserID, Role: principal.Role}
}
