package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bobmcallan/famfolio/internal/app"
	"github.com/bobmcallan/famfolio/internal/common"
)

// Server wraps the HTTP server and application reference.
type Server struct {
	app          *app.App
	server       *http.Server
	logger       *common.Logger
	shutdownChan chan struct{}
}

// SetShutdownChannel sets the channel that will be signaled when HTTP shutdown is requested.
func (s *Server) SetShutdownChannel(ch chan struct{}) {
	s.shutdownChan = ch
}

// NewServer creates a new HTTP REST API server.
func NewServer(a *app.App) *Server {
	s := &Server{
		app:    a,
		logger: a.Logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := applyMiddleware(mux, a.Logger)

	cfg := a.Config.Server
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	usage := s.app.PriceService.APIUsage()
	s.logger.Info().
		Str("addr", s.server.Addr).
		Str("storage", s.app.Storage.Backend()).
		Int("price_requests_remaining", usage.Remaining).
		Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server, letting in-flight price
// fetches finish within ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	usage := s.app.PriceService.APIUsage()
	s.logger.Info().
		Int("price_requests_used", usage.UsedToday).
		Err(err).
		Msg("REST API server stopped")
	return err
}

// serviceError logs a failed service call against the request's
// correlation id and writes the mapped error response.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.logger.For(r.Context())
	event := log.Warn()
	if errors.Is(err, common.ErrDataIntegrity) {
		event = log.Error()
	}
	event.Str("path", r.URL.Path).Err(err).Msg("Request failed")
	WriteServiceError(w, err)
}
