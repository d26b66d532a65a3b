// Package authctl implements the operator command-line tool. Its single
// command bootstraps an administrator account directly against the
// configured storage backend, so the first administrator never has to pass
// through the public registration endpoint.
package authctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mkravchenko/authd/internal/common"
	"github.com/mkravchenko/authd/internal/logging"
	"github.com/mkravchenko/authd/internal/server/auth"
	"github.com/mkravchenko/authd/internal/server/config"
	"github.com/mkravchenko/authd/internal/server/models"
	"github.com/mkravchenko/authd/internal/server/repositories/repomanager"
	"github.com/mkravchenko/authd/internal/server/services"
)

const usage = "usage: authctl create-admin -username <name> -email <address>"

type App struct {
	repos repomanager.RepositoryManager
	users *services.UserService
	out   io.Writer
}

func NewApp(cfg *config.Config) (*App, error) {
	slogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger := logging.NewSlogLogger(slogger)

	repos, err := repomanager.NewRepositoryManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	us, err := services.NewUserService(repos, hasher, hasher, cfg, logger)
	if err != nil {
		repos.Close()
		return nil, fmt.Errorf("service init error: %w", err)
	}

	return &App{repos: repos, users: us, out: os.Stdout}, nil
}

func (a *App) Close() error { return a.repos.Close() }

// Run dispatches the subcommand in args (the program arguments without the
// binary name).
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "create-admin":
		return a.createAdmin(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func (a *App) createAdmin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ContinueOnError)
	username := fs.String("username", "", "administrator login name")
	email := fs.String("email", "", "administrator email address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return errors.New("both -username and -email are required")
	}

	if err := a.repos.RunMigrations(ctx); err != nil {
		return fmt.Errorf("storage init error: %w", err)
	}

	password, err := promptPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	user, err := a.users.Register(ctx, *username, *email, string(password), models.UserRoleAdministrator)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "administrator %q created (id %s)\n", user.Username, user.ID)
	return nil
}
