// Package server provides the HTTP API of tonelight.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/chroma/tonelight/internal/app"
	"github.com/chroma/tonelight/internal/store"
)

// Config holds the server configuration. Route groups are only mounted for
// the collaborators that are set.
type Config struct {
	StaticDir string
	App       *app.App
	Store     *store.Store
	Logger    *slog.Logger
}

// Server is the HTTP server of tonelight.
type Server struct {
	config     Config
	router     *chi.Mux
	hub        *EventHub
	logger     *slog.Logger
	httpServer *http.Server
	start      time.Time
}

// New creates a Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)

	s := &Server{
		config: config,
		router: r,
		logger: logger,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/api/health", s.handleHealth)

	if a := s.config.App; a != nil {
		h := &pipelineHandler{app: a, logger: s.logger}
		s.hub = NewEventHub(a, s.logger)

		r := s.router
		r.Get("/api/status", h.Status)
		r.Post("/api/reset", h.Reset)
		r.Post("/api/stop", h.Stop)
		r.Post("/api/slots/{key}/reset", h.ResetSlot)
		r.Put("/api/enabled", h.SetEnabled)
		r.Get("/api/palette", h.Palette)
		r.Get("/api/commands", h.Commands)
		r.Post("/api/classify", h.Classify)
		r.Post("/api/send", h.Send)
		r.Get("/api/preview.jpg", h.Preview)
		r.Get("/api/stream", NewStreamHandler(a).ServeHTTP)
		r.Get("/api/events", s.hub.ServeHTTP)
	}

	if st := s.config.Store; st != nil {
		h := &historyHandler{store: st}
		s.router.Get("/api/dispatches", h.List)
		s.router.Get("/api/palette/import", h.LastImport)
	}

	if s.config.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	})
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.Close()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}
