// Package users provides the credential store: durable user records keyed
// by id with unique username and email lookups.
package users

import (
	"context"
	"time"

	"github.com/mkravchenko/authd/internal/server/models"
)

// UserFilter narrows List and Count. Nil fields match everything.
type UserFilter struct {
	Role          *models.UserRole
	Status        *models.UserStatus
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// Repository is the credential store contract.
//
// Implementations enforce username and email uniqueness and surface a
// violation as common.ErrorAlreadyExists. A lookup miss is
// common.ErrorNotFound. List returns records in a stable order (creation
// time, then id) so pagination windows do not overlap.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter UserFilter, offset int, limit int) ([]*models.User, error)
	Count(ctx context.Context, filter UserFilter) (int64, error)
}
