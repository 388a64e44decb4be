package auth

import (
	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// Principal represents the authenticated caller resolved from a bearer token.
type Principal struct {
	UserID string
	Role   domain.Role
}

// Authorize is a pure decision function: it permits the principal when its
// role belongs to the required set and denies otherwise. Services call it
// before touching any repository so a denial never produces a partial write.
func Authorize(p Principal, required ...domain.Role) error {
	if p.UserID == "" {
		return apperrors.NewUnauthenticated("identity required")
	}
	if len(required) == 0 {
		return nil
	}
	for _, role := range required {
		if p.Role == role {
			return nil
		}
	}
	return apperrors.NewForbidden("insufficient role")
}
