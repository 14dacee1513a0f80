// Package httpapi exposes the authentication, user and document operations
// over HTTP. Route-level access rules are expressed as middleware around the
// authorization chain so every protected handler runs behind the same checks.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/config"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
)

type Server struct {
	address   string
	logger    logging.Logger
	jwtSecret []byte
	auth      *services.AuthService
	users     *services.UserService
}

func NewServer(cfg *config.Config, l logging.Logger, as *services.AuthService, us *services.UserService) *Server {
	return &Server{
		address:   cfg.EndpointAddrHTTP,
		logger:    l.With("module", "http_server"),
		jwtSecret: []byte(cfg.SecretKey),
		auth:      as,
		users:     us,
	}
}

// Router builds the route tree. Exposed separately from Run so tests can
// drive it through httptest without binding a socket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/users", s.handleRegister)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.With(s.requireRoles(models.RoleAdmin)).Get("/api/users", s.handleListUsers)

		r.Route("/api/users/{id}", func(r chi.Router) {
			r.Use(s.requireOwner("id"))

			r.Get("/", s.handleGetUser)
			r.Patch("/", s.handleUpdateUser)
			r.Delete("/", s.handleDeleteUser)

			r.Post("/document", s.handleAttachDocument)
			r.Delete("/document", s.handleRemoveDocument)
			r.Get("/document", s.handleDocumentURL)
		})
	})

	return r
}

func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
