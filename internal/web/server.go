package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/andresmejia3/ash/internal/ash"
	"github.com/andresmejia3/ash/internal/config"
	"github.com/andresmejia3/ash/internal/logging"
	"github.com/andresmejia3/ash/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// IdentityFinder is the part of the identity store the API needs.
type IdentityFinder interface {
	FindClosestIdentity(ctx context.Context, fp ash.Fingerprint, cmp *ash.Comparator, threshold float64) (store.Match, error)
	ListIdentities(ctx context.Context, nameFilter string) ([]store.Identity, error)
}

// Server represents the web server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	comparator *ash.Comparator
	threshold  float64
	finder     IdentityFinder
	log        *logging.Logger
}

// NewServer creates a new web server. finder may be nil, in which case the
// identity endpoints answer 503.
func NewServer(cfg *config.Config, finder IdentityFinder, log *logging.Logger) (*Server, error) {
	cmp, err := ash.NewComparator(cfg.Matching.Calibration)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NoopLogger()
	}

	r := chi.NewRouter()
	s := &Server{
		router:     r,
		comparator: cmp,
		threshold:  cfg.Matching.Threshold,
		finder:     finder,
		log:        log,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthCheck)
		r.Post("/ash", s.encode)
		r.Post("/similarity", s.similarity)
		r.Post("/identify", s.identify)
		r.Get("/identities", s.listIdentities)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info("starting web server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
