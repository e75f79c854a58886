package domain

import "time"

// UserRole enumerates operator roles.
type UserRole string

const (
	UserRoleAgent   UserRole = "AGENT"
	UserRoleManager UserRole = "MANAGER"
	UserRoleAdmin   UserRole = "ADMIN"
)

// Elevated reports whether the role may perform administrative mutations and
// close tickets on behalf of others.
func (r UserRole) Elevated() bool {
	return r == UserRoleManager || r == UserRoleAdmin
}

// User models an agent, manager or administrator.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
