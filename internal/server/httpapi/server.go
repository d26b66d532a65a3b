// Package httpapi exposes the authentication service over HTTP: public
// registration and login, token refresh, logout, profile lookup, and the
// admin user management surface. Domain errors map to status codes by kind.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkravchenko/authd/internal/logging"
	"github.com/mkravchenko/authd/internal/server/auth"
	"github.com/mkravchenko/authd/internal/server/services"
)

type HTTPServer struct {
	address string
	users   *services.UserService
	logger  logging.Logger
}

func NewHTTPServer(address string, logger logging.Logger, us *services.UserService) *HTTPServer {
	return &HTTPServer{
		address: address,
		users:   us,
		logger:  logger.With("module", "http_server"),
	}
}

// Router assembles the gin engine. Request logging stays with the service
// logger, so the engine carries only the recovery middleware.
func (s *HTTPServer) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", s.register)
		authGroup.POST("/login", s.login)
		authGroup.POST("/refresh", s.refresh)
		authGroup.POST("/logout", s.authenticate(), s.logout)
	}

	api := r.Group("/api")
	api.Use(s.authenticate())
	{
		api.GET("/users/me", s.me)
		api.GET("/users/me/sessions", s.mySessions)
	}

	admin := r.Group("/api/admin")
	admin.Use(s.authenticate(auth.CapabilityAdmin))
	{
		admin.GET("/users", s.listUsers)
		admin.GET("/users/:id", s.getUser)
		admin.PATCH("/users/:id", s.updateUser)
		admin.DELETE("/users/:id", s.deleteUser)
	}

	return r
}

func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.address,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "error shutting down HTTP server", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
