package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	cfg := config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AccessTokenTTLMinutes = 5
	cfg.Auth.BcryptCost = 4

	lines := repository.NewMemoryServiceLineRepository()
	ticketRepo := repository.NewMemoryTicketRepository(lines)
	userRepo := repository.NewMemoryUserRepository(ticketRepo, lines)
	dispatcher := events.NewInMemoryDispatcher()

	userService := service.NewUserService(cfg, service.UserDependencies{
		UserRepo:   userRepo,
		Dispatcher: dispatcher,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		Dispatcher: dispatcher,
	})
	catalogService := service.NewCatalogService(service.CatalogDependencies{
		CatalogRepo: repository.NewMemoryCatalogRepository(),
		LineRepo:    lines,
		TicketRepo:  ticketRepo,
	})

	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("test", "test", &persistence.Postgres{}, &persistence.Redis{}),
		Users:          handlers.NewUsersHandler(userService),
		Tickets:        handlers.NewTicketsHandler(ticketService, catalogService),
		Services:       handlers.NewServicesHandler(catalogService),
		AuthMiddleware: auth.NewAuthMiddleware(userService.TokenManager()),
		Registry:       registry,
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	payload := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &payload), "body: %s", raw)
	}
	return resp, payload
}

func registerAndLogin(t *testing.T, app *fiber.App, email, role string) string {
	t.Helper()
	resp, _ := doJSON(t, app, http.MethodPost, "/auth/register", "", map[string]any{
		"name":     "Test User",
		"email":    email,
		"password": "hunter22",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, payload := doJSON(t, app, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    email,
		"password": "hunter22",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := payload["data"].(map[string]any)
	return data["token"].(string)
}

func errorCode(payload map[string]any) string {
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}

func TestRouter_AuthenticationRequired(t *testing.T) {
	app := newTestApp(t)

	resp, payload := doJSON(t, app, http.MethodGet, "/tickets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(payload))

	resp, payload = doJSON(t, app, http.MethodGet, "/tickets", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(payload))
}

func TestRouter_TicketLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	customerToken := registerAndLogin(t, app, "customer@example.com", "")
	techToken := registerAndLogin(t, app, "tech@example.com", "tech")

	resp, payload := doJSON(t, app, http.MethodPost, "/tickets", customerToken, map[string]any{
		"title":       "printer jammed",
		"description": "tray two keeps jamming",
		"category":    "hardware",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticket := payload["data"].(map[string]any)
	ticketID := ticket["id"].(string)
	assert.Equal(t, "open", ticket["status"])

	resp, _ = doJSON(t, app, http.MethodPost, "/tickets", techToken, map[string]any{
		"title":       "x",
		"description": "y",
		"category":    "hardware",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPost, fmt.Sprintf("/tickets/%s/assign", ticketID), techToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload = doJSON(t, app, http.MethodPost, fmt.Sprintf("/tickets/%s/start", ticketID), techToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "in_progress", payload["data"].(map[string]any)["status"])

	resp, payload = doJSON(t, app, http.MethodPost, fmt.Sprintf("/tickets/%s/close", ticketID), techToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "closed", payload["data"].(map[string]any)["status"])

	resp, payload = doJSON(t, app, http.MethodDelete, "/tickets/"+ticketID, customerToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", errorCode(payload))
}

func TestRouter_ErrorEnvelope(t *testing.T) {
	app := newTestApp(t)
	techToken := registerAndLogin(t, app, "tech@example.com", "tech")

	resp, payload := doJSON(t, app, http.MethodPost, "/tickets/missing/assign", techToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(payload))

	resp, payload = doJSON(t, app, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "tech@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", errorCode(payload))
}

func TestRouter_ConflictOnSecondClaim(t *testing.T) {
	app := newTestApp(t)
	customerToken := registerAndLogin(t, app, "customer@example.com", "")
	techToken := registerAndLogin(t, app, "tech@example.com", "tech")
	rivalToken := registerAndLogin(t, app, "rival@example.com", "tech")

	resp, payload := doJSON(t, app, http.MethodPost, "/tickets", customerToken, map[string]any{
		"title":       "no network",
		"description": "cannot reach anything",
		"category":    "network",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ticketID := payload["data"].(map[string]any)["id"].(string)

	resp, _ = doJSON(t, app, http.MethodPost, fmt.Sprintf("/tickets/%s/assign", ticketID), techToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, payload = doJSON(t, app, http.MethodPost, fmt.Sprintf("/tickets/%s/assign", ticketID), rivalToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", errorCode(payload))
}

func TestRouter_ListPaginationShape(t *testing.T) {
	app := newTestApp(t)
	customerToken := registerAndLogin(t, app, "customer@example.com", "")

	resp, payload := doJSON(t, app, http.MethodGet, "/tickets?page=1&perPage=10", customerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := payload["data"].(map[string]any)
	pagination := data["pagination"].(map[string]any)
	assert.Equal(t, float64(1), pagination["page"])
	assert.Equal(t, float64(10), pagination["perPage"])
	assert.Equal(t, float64(0), pagination["totalRecords"])
	assert.Equal(t, float64(1), pagination["totalPages"], "empty set still reports one page")
}

func TestRouter_HealthLive(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
