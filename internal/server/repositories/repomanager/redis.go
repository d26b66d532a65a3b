package repomanager

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mkravchenko/authd/internal/server/repositories/refreshtokens"
	"github.com/mkravchenko/authd/internal/server/repositories/users"
)

// RedisRepositoryManager vends Redis-backed repository implementations.
type RedisRepositoryManager struct {
	client *redis.Client
}

func NewRedisRepositoryManager(addr string, password string, db int) *RedisRepositoryManager {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRepositoryManager{client: client}
}

// Users returns a users.Repository bound to the managed client.
func (m *RedisRepositoryManager) Users() users.Repository {
	return users.NewRedisRepository(m.client)
}

// RefreshTokens returns a refreshtokens.Repository bound to the managed
// client.
func (m *RedisRepositoryManager) RefreshTokens() refreshtokens.Repository {
	return refreshtokens.NewRedisRepository(m.client)
}

// RunMigrations verifies connectivity; the Redis backend has no schema.
func (m *RedisRepositoryManager) RunMigrations(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (m *RedisRepositoryManager) Close() error {
	return m.client.Close()
}
