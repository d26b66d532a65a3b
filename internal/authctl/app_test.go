package authctl

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/mkravchenko/authd/internal/server/auth"
	"github.com/mkravchenko/authd/internal/server/config"
)

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := &config.Config{
		StorageBackend:               "redis",
		RedisAddr:                    mr.Addr(),
		SecretKey:                    "test-secret",
		JWTAlgorithm:                 "HS256",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: time.Hour,
		BcryptCost:                   bcrypt.MinCost,
	}

	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp error: %v", err)
	}
	t.Cleanup(func() { app.Close() })

	var out bytes.Buffer
	app.out = &out
	return app, &out
}

// stubPassword replaces the terminal reader with canned entries, one per
// prompt.
func stubPassword(t *testing.T, entries ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	i := 0
	readPassword = func(int) ([]byte, error) {
		if i >= len(entries) {
			return nil, errors.New("no more input")
		}
		e := entries[i]
		i++
		return []byte(e), nil
	}
}

func TestCreateAdmin(t *testing.T) {
	app, out := newTestApp(t)
	stubPassword(t, "Adm1n!pw!", "Adm1n!pw!")

	err := app.Run(context.Background(), []string{"create-admin", "-username", "root", "-email", "root@example.com"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if !strings.Contains(out.String(), `administrator "root" created`) {
		t.Fatalf("output: %q", out.String())
	}

	// the account works and actually holds the administrator capability
	pair, err := app.users.Login(context.Background(), "root", "Adm1n!pw!")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if _, err := app.users.Verify(pair.AccessToken, auth.CapabilityAdmin); err != nil {
		t.Fatalf("Verify error: %v", err)
	}
}

func TestCreateAdmin_DuplicateUsername(t *testing.T) {
	app, _ := newTestApp(t)
	stubPassword(t, "Adm1n!pw!", "Adm1n!pw!", "Adm1n!pw!", "Adm1n!pw!")

	args := []string{"create-admin", "-username", "root", "-email", "root@example.com"}
	if err := app.Run(context.Background(), args); err != nil {
		t.Fatalf("first Run error: %v", err)
	}
	if err := app.Run(context.Background(), args); err == nil {
		t.Fatal("expected error for duplicate username")
	}
}

func TestCreateAdmin_PasswordMismatch(t *testing.T) {
	app, _ := newTestApp(t)
	stubPassword(t, "Adm1n!pw!", "different!")

	err := app.Run(context.Background(), []string{"create-admin", "-username", "root", "-email", "root@example.com"})
	if err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateAdmin_ShortPassword(t *testing.T) {
	app, _ := newTestApp(t)
	stubPassword(t, "short", "short")

	err := app.Run(context.Background(), []string{"create-admin", "-username", "root", "-email", "root@example.com"})
	if err == nil || !strings.Contains(err.Error(), "at least 8") {
		t.Fatalf("err = %v", err)
	}
}

func TestCreateAdmin_MissingFlags(t *testing.T) {
	app, _ := newTestApp(t)

	err := app.Run(context.Background(), []string{"create-admin", "-username", "root"})
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("err = %v", err)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	app, _ := newTestApp(t)

	if err := app.Run(context.Background(), []string{"frobnicate"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := app.Run(context.Background(), nil); err == nil {
		t.Fatal("expected usage error for empty args")
	}
}
