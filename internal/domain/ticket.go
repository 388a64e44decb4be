package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusClosed     TicketStatus = "closed"
)

// TicketCategory classifies the reported problem.
type TicketCategory string

const (
	CategoryHardware    TicketCategory = "hardware"
	CategoryData        TicketCategory = "data"
	CategorySoftware    TicketCategory = "software"
	CategoryWeb         TicketCategory = "web"
	CategoryNetwork     TicketCategory = "network"
	CategoryVirus       TicketCategory = "virus"
	CategoryPeripherals TicketCategory = "peripherals"
	CategorySystems     TicketCategory = "systems"
)

var ticketCategories = map[TicketCategory]struct{}{
	CategoryHardware:    {},
	CategoryData:        {},
	CategorySoftware:    {},
	CategoryWeb:         {},
	CategoryNetwork:     {},
	CategoryVirus:       {},
	CategoryPeripherals: {},
	CategorySystems:     {},
}

// ValidCategory reports whether the category belongs to the fixed enumeration.
func ValidCategory(c TicketCategory) bool {
	_, ok := ticketCategories[c]
	return ok
}

// ValidStatus reports whether the status is a known lifecycle state.
func ValidStatus(s TicketStatus) bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// Ticket is the aggregate for customer-reported work.
type Ticket struct {
	ID           string
	OwnerID      string
	TechnicianID *string
	Title        string
	Description  string
	Category     TicketCategory
	Status       TicketStatus
	Estimate     float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AssignedTo reports whether the ticket is currently held by the given technician.
func (t *Ticket) AssignedTo(technicianID string) bool {
	return t.TechnicianID != nil && *t.TechnicianID == technicianID
}
