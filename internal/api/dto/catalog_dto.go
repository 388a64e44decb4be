package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// CatalogServiceRequest payload for create and update.
type CatalogServiceRequest struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// CatalogServiceResponse response.
type CatalogServiceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FromCatalogService maps a catalog entry to its response shape.
func FromCatalogService(svc *domain.CatalogService) CatalogServiceResponse {
	return CatalogServiceResponse{
		ID:        svc.ID,
		Name:      svc.Name,
		Amount:    svc.Amount,
		CreatedAt: svc.CreatedAt,
		UpdatedAt: svc.UpdatedAt,
	}
}
