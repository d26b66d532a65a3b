package repomanager

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/mkravchenko/authd/internal/server/config"
)

func TestNewRepositoryManager_SelectsBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()

	cfg.StorageBackend = "postgres"
	m, err := NewRepositoryManager(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(*PostgresRepositoryManager); !ok {
		t.Fatalf("expected postgres manager, got %T", m)
	}
	m.Close()

	cfg.StorageBackend = "redis"
	m, err = NewRepositoryManager(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := m.(*RedisRepositoryManager); !ok {
		t.Fatalf("expected redis manager, got %T", m)
	}
	m.Close()

	cfg.StorageBackend = "etcd"
	if _, err := NewRepositoryManager(cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestRedisRepositoryManager(t *testing.T) {
	mr := miniredis.RunT(t)

	m := NewRedisRepositoryManager(mr.Addr(), "", 0)
	defer m.Close()

	if err := m.RunMigrations(context.Background()); err != nil {
		t.Fatalf("RunMigrations error: %v", err)
	}
	if m.Users() == nil || m.RefreshTokens() == nil {
		t.Fatalf("expected concrete repositories")
	}
}

func TestRedisRepositoryManager_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	m := NewRedisRepositoryManager(addr, "", 0)
	defer m.Close()

	if err := m.RunMigrations(context.Background()); err == nil {
		t.Fatalf("expected connectivity error")
	}
}
