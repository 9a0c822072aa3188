// Package web exposes the report engine over HTTP: JSON section endpoints,
// a server-sent-events stream for the narrative summary, and an HTML
// rendering of stored summaries.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/roasbeef/repodigest/internal/orchestrator"
	"github.com/roasbeef/repodigest/internal/store"
)

// Config holds configuration for the web server.
type Config struct {
	// Addr is the listen address.
	Addr string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr: "127.0.0.1:8418",
	}
}

// Server is the HTTP server fronting the report orchestrator.
type Server struct {
	cfg   *Config
	orch  *orchestrator.Orchestrator
	store store.SectionStore
	log   *slog.Logger

	mux *http.ServeMux
	srv *http.Server
}

// NewServer creates a web server.
func NewServer(cfg *Config, orch *orchestrator.Orchestrator,
	sectionStore store.SectionStore, log *slog.Logger) *Server {

	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:   cfg,
		orch:  orch,
		store: sectionStore,
		log:   log.With("component", "web"),
		mux:   http.NewServeMux(),
	}
	s.registerRoutes()

	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc(
		"GET /api/v1/reports/{owner}/{repo}/summary",
		s.handleSummarySSE,
	)
	s.mux.HandleFunc(
		"GET /api/v1/reports/{owner}/{repo}/summary/html",
		s.handleSummaryHTML,
	)
	s.mux.HandleFunc(
		"GET /api/v1/reports/{owner}/{repo}/{section}",
		s.handleSection,
	)
	s.mux.HandleFunc(
		"GET /api/v1/reports/{owner}/{repo}",
		s.handleIndex,
	)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.mux,
		ReadTimeout: 15 * time.Second,
		// No write timeout: the summary stream is long-lived and
		// manages its own deadline.
		IdleTimeout: 60 * time.Second,
	}

	s.log.Info("Starting web server", "addr", s.cfg.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}

	return nil
}
