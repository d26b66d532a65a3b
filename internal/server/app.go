// Package server initializes and runs the authentication service: it wires
// configuration, the storage backend, the session service, the background
// sweeper, and the HTTP endpoint, and handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mkravchenko/authd/internal/logging"
	"github.com/mkravchenko/authd/internal/server/auth"
	"github.com/mkravchenko/authd/internal/server/config"
	"github.com/mkravchenko/authd/internal/server/httpapi"
	"github.com/mkravchenko/authd/internal/server/repositories/repomanager"
	"github.com/mkravchenko/authd/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	repos       repomanager.RepositoryManager
	userService *services.UserService
	sweeper     *services.Sweeper
}

func NewApp(cfg *config.Config) (*App, error) {
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	repos, err := repomanager.NewRepositoryManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	us, err := services.NewUserService(repos, hasher, hasher, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("service init error: %w", err)
	}

	sweeper := services.NewSweeper(repos, cfg.CleanupInterval, logger)

	return &App{config: cfg, logger: logger, repos: repos, userService: us, sweeper: sweeper}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.Address, app.logger, app.userService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.repos.RunMigrations(ctx); err != nil {
		app.logger.Error(ctx, "storage init failed", "error", err)
		return
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "error closing storage", "error", err)
	}
}
