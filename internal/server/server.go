// Package server wires the HTTP pipeline: routing, admission control, the
// provider calls, and fire-and-forget usage tracking.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/manenim/ai-gateway/internal/config"
	"github.com/manenim/ai-gateway/pkg/limiter"
	"github.com/manenim/ai-gateway/pkg/provider"
	"github.com/manenim/ai-gateway/pkg/usage"
)

// Server is the HTTP front end of the gateway.
type Server struct {
	router *chi.Mux
	server *http.Server

	cfg     *config.Config
	logger  *zap.Logger
	limiter limiter.Limiter
	chat    provider.ChatCompleter
	speech  provider.SpeechSynthesizer
	tracker usage.Tracker
}

// New assembles the router and middleware chain around the given
// collaborators.
func New(cfg *config.Config, logger *zap.Logger, lim limiter.Limiter, chat provider.ChatCompleter, speech provider.SpeechSynthesizer, tracker usage.Tracker) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		limiter: lim,
		chat:    chat,
		speech:  speech,
		tracker: tracker,
	}

	r := chi.NewRouter()

	// RealIP first so the limiter keys on the forwarded client address
	// behind a proxy, then correlation, logging, and panic recovery.
	r.Use(chimw.RealIP)
	r.Use(RequestID)
	r.Use(s.requestLogger)
	r.Use(s.recovery)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/speech", s.handleSpeech)
		r.Get("/usage/{clientID}", s.handleUsage)
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "the requested resource was not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "the requested method is not allowed for this resource")
	})

	s.router = r
	return s
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	s.logger.Info("starting HTTP server", zap.String("addr", s.cfg.ListenAddr))

	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation.
func (s *Server) Handler() http.Handler {
	return s.router
}
