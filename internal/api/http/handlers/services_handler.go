package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// ServicesHandler manages the billable service catalog endpoints.
type ServicesHandler struct {
	catalog *service.CatalogService
}

// NewServicesHandler constructs handler.
func NewServicesHandler(catalogService *service.CatalogService) *ServicesHandler {
	return &ServicesHandler{catalog: catalogService}
}

// ListServices GET /services.
func (h *ServicesHandler) ListServices(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	services, err := h.catalog.List(c.UserContext(), principal, c.Query("search"))
	if err != nil {
		return err
	}
	items := make([]dto.CatalogServiceResponse, 0, len(services))
	for i := range services {
		items = append(items, dto.FromCatalogService(&services[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateService POST /services. Admin only.
func (h *ServicesHandler) CreateService(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	var req dto.CatalogServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	svc, err := h.catalog.Create(c.UserContext(), principal, service.CatalogInput{
		Name:   req.Name,
		Amount: req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.FromCatalogService(svc)})
}

// UpdateService PATCH /services/:id. Admin only.
func (h *ServicesHandler) UpdateService(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	var req dto.CatalogServiceRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	svc, err := h.catalog.Update(c.UserContext(), principal, c.Params("id"), service.CatalogInput{
		Name:   req.Name,
		Amount: req.Amount,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.FromCatalogService(svc)})
}

// DeleteService DELETE /services/:id. Admin only.
func (h *ServicesHandler) DeleteService(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	if err := h.catalog.Delete(c.UserContext(), principal, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
