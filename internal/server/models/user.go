package models

import "time"

// UserRole is the flat role tag attached to every identity. Authorization
// decisions map a role to a capability set; there is no finer-grained ACL.
type UserRole string

const (
	UserRoleStandard      UserRole = "standard"
	UserRoleAdministrator UserRole = "administrator"
)

// UserStatus describes the lifecycle state of an identity. Only an active
// identity may complete login or redeem a refresh token.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// User is an identity record. Username and email are globally unique;
// uniqueness is enforced by the storage backend.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         UserRole
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}
