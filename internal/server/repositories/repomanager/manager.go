// Package repomanager wires the configured storage backend to concrete
// repository implementations.
package repomanager

import (
	"context"
	"fmt"

	"github.com/mkravchenko/authd/internal/server/config"
	"github.com/mkravchenko/authd/internal/server/repositories/refreshtokens"
	"github.com/mkravchenko/authd/internal/server/repositories/users"
)

// RepositoryManager vends the repositories of one storage backend and owns
// the underlying connection.
type RepositoryManager interface {
	// RunMigrations prepares the backend: schema migrations for PostgreSQL,
	// a connectivity check for Redis.
	RunMigrations(ctx context.Context) error
	Users() users.Repository
	RefreshTokens() refreshtokens.Repository
	Close() error
}

// NewRepositoryManager constructs the manager selected by cfg.StorageBackend.
func NewRepositoryManager(cfg *config.Config) (RepositoryManager, error) {
	switch cfg.StorageBackend {
	case "postgres":
		return NewPostgresRepositoryManager(cfg.DatabaseDSN)
	case "redis":
		return NewRedisRepositoryManager(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
