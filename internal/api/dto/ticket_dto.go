package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Category    domain.TicketCategory `json:"category"`
	Estimate    *float64              `json:"estimate,omitempty"`
}

// AdminUpdateTicketRequest payload for the admin overwrite.
type AdminUpdateTicketRequest struct {
	Title           *string                `json:"title,omitempty"`
	Description     *string                `json:"description,omitempty"`
	Category        *domain.TicketCategory `json:"category,omitempty"`
	Status          *domain.TicketStatus   `json:"status,omitempty"`
	TechnicianID    *string                `json:"technicianId,omitempty"`
	ClearTechnician bool                   `json:"clearTechnician,omitempty"`
	Estimate        *float64               `json:"estimate,omitempty"`
}

// TicketResponse response.
type TicketResponse struct {
	ID           string                `json:"id"`
	OwnerID      string                `json:"ownerId"`
	TechnicianID *string               `json:"technicianId"`
	Title        string                `json:"title"`
	Description  string                `json:"description"`
	Category     domain.TicketCategory `json:"category"`
	Status       domain.TicketStatus   `json:"status"`
	Estimate     float64               `json:"estimate"`
	CreatedAt    time.Time             `json:"createdAt"`
	UpdatedAt    time.Time             `json:"updatedAt"`
}

// TicketListResponse wraps a page of tickets.
type TicketListResponse struct {
	Tickets    []TicketResponse   `json:"tickets"`
	Pagination service.Pagination `json:"pagination"`
}

// AddServiceLineRequest payload.
type AddServiceLineRequest struct {
	CatalogServiceID string `json:"catalogServiceId"`
}

// ServiceLineResponse response.
type ServiceLineResponse struct {
	ID               string    `json:"id"`
	TicketID         string    `json:"ticketId"`
	CatalogServiceID string    `json:"catalogServiceId"`
	Name             string    `json:"name"`
	Amount           float64   `json:"amount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// FromTicket maps a domain ticket to its response shape.
func FromTicket(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:           ticket.ID,
		OwnerID:      ticket.OwnerID,
		TechnicianID: ticket.TechnicianID,
		Title:        ticket.Title,
		Description:  ticket.Description,
		Category:     ticket.Category,
		Status:       ticket.Status,
		Estimate:     ticket.Estimate,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
	}
}

// FromServiceLine maps a domain service line to its response shape.
func FromServiceLine(line *domain.ServiceLine) ServiceLineResponse {
	return ServiceLineResponse{
		ID:               line.ID,
		TicketID:         line.TicketID,
		CatalogServiceID: line.CatalogServiceID,
		Name:             line.Name,
		Amount:           line.Amount,
		CreatedAt:        line.CreatedAt,
	}
}
