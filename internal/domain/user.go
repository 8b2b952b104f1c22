package domain

import "time"

// UserStatus represents lifecycle states for an account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// UserRole distinguishes support staff from requesters.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleAgent   UserRole = "AGENT"
	RoleEndUser UserRole = "END_USER"
)

// User is the domain model for everyone who touches tickets: requesters,
// agents working them, and admins.
type User struct {
	ID             string
	OrganizationID string
	Name           string
	Email          string
	PasswordHash   string
	Role           UserRole
	TeamID         *string
	Status         UserStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Active reports whether the user may receive notifications or be assigned work.
func (u *User) Active() bool {
	return u.Status == UserStatusActive
}
