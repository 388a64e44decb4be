package domain

import "time"

// CatalogService is a named, priced item administrators maintain.
type CatalogService struct {
	ID        string
	Name      string
	Amount    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ServiceLine is a billable line attached to a ticket, copied from a catalog
// entry at link time so later catalog edits do not rewrite past estimates.
type ServiceLine struct {
	ID               string
	TicketID         string
	CatalogServiceID string
	Name             string
	Amount           float64
	CreatedAt        time.Time
}
