package domain

import "time"

// Role determines which ticket actions an identity may invoke.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleTech     Role = "tech"
	RoleAdmin    Role = "admin"
)

// ValidRole reports whether the role is one of the known roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleTech, RoleAdmin:
		return true
	}
	return false
}

// User is the domain model for every identity: customers, technicians and admins.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
