package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// UserService coordinates registration, login and identity administration.
type UserService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	tokenMgr   *auth.TokenManager
	bcryptCost int
}

// UserDependencies bundles collaborators for the user service.
type UserDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
}

// RegisterInput describes self-registration payload.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
}

// SelfUpdateInput describes the fields an identity may change on itself.
type SelfUpdateInput struct {
	Name     *string
	Email    *string
	Password *string
}

// UserListInput describes admin listing parameters.
type UserListInput struct {
	Role    *domain.Role
	Search  *string
	Page    int
	PerPage int
}

// NewUserService builds the service.
func NewUserService(cfg config.Config, deps UserDependencies) *UserService {
	return &UserService{
		users:      deps.UserRepo,
		dispatcher: deps.Dispatcher,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Register creates a new identity. This is the one unauthenticated mutation.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	role := input.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	if !domain.ValidRole(role) {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": role})
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already in use", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(input.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// Login authenticates credentials and issues a role-bearing token.
func (s *UserService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", time.Time{}, apperrors.NewUnauthenticated("email or password incorrect")
		}
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, apperrors.NewUnauthenticated("email or password incorrect")
	}
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, "", time.Time{}, apperrors.MapError(err)
	}
	return user, token, exp, nil
}

// UpdateMe changes the caller's own name, email or password.
func (s *UserService) UpdateMe(ctx context.Context, principal auth.Principal, input SelfUpdateInput) (*domain.User, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, err
	}
	user, err := s.fetch(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}

	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		if email != user.Email {
			if _, err := s.users.GetByEmail(ctx, email); err == nil {
				return nil, apperrors.NewConflict("email already in use", map[string]any{"email": email})
			} else if !errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.MapError(err)
			}
			user.Email = email
		}
	}
	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Password != nil && *input.Password != "" {
		hash, err := auth.HashPassword(*input.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// Get fetches one identity. Callers reach themselves; admins reach anyone.
func (s *UserService) Get(ctx context.Context, principal auth.Principal, userID string) (*domain.User, error) {
	if err := auth.Authorize(principal); err != nil {
		return nil, err
	}
	if principal.UserID != userID && principal.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("access denied")
	}
	return s.fetch(ctx, userID)
}

// List returns a page of identities. Admin only.
func (s *UserService) List(ctx context.Context, principal auth.Principal, input UserListInput) ([]domain.User, Pagination, error) {
	if err := auth.Authorize(principal, domain.RoleAdmin); err != nil {
		return nil, Pagination{}, err
	}

	page := input.Page
	if page < 1 {
		page = 1
	}
	perPage := input.PerPage
	if perPage < 1 {
		perPage = 20
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	filter := repository.UserFilter{
		Role:   input.Role,
		Search: input.Search,
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	}
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperrors.MapError(err)
	}
	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, Pagination{}, apperrors.MapError(err)
	}

	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}
	return users, Pagination{
		Page:         page,
		PerPage:      perPage,
		TotalRecords: total,
		TotalPages:   totalPages,
	}, nil
}

// UpdateRole switches an identity between customer and tech. Admin only, and
// admin accounts themselves are never retargeted this way.
func (s *UserService) UpdateRole(ctx context.Context, principal auth.Principal, userID string, role domain.Role) (*domain.User, error) {
	if err := auth.Authorize(principal, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if role != domain.RoleCustomer && role != domain.RoleTech {
		return nil, apperrors.NewValidationError("role must be customer or tech", map[string]any{"role": role})
	}

	user, err := s.fetch(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == domain.RoleAdmin {
		return nil, apperrors.NewForbidden("cannot modify admin role")
	}

	user.Role = role
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// Delete removes an identity with role-dependent cascades: a customer takes
// their tickets along, a technician releases unfinished tickets back to the
// open pool. Admin accounts cannot be deleted.
func (s *UserService) Delete(ctx context.Context, principal auth.Principal, userID string) error {
	if err := auth.Authorize(principal, domain.RoleAdmin); err != nil {
		return err
	}

	user, err := s.fetch(ctx, userID)
	if err != nil {
		return err
	}
	if user.Role == domain.RoleAdmin {
		return apperrors.NewForbidden("cannot delete admin user")
	}

	if err := s.users.DeleteCascade(ctx, user); err != nil {
		return apperrors.MapError(err)
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			Type:      events.EventUserDeleted,
			Actor:     actorFor(principal),
			Timestamp: time.Now(),
			Payload: events.UserDeletedPayload{
				DeletedUserID: user.ID,
				Role:          user.Role,
			},
		})
	}
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *UserService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *UserService) fetch(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}
