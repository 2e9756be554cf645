package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/livebridge/internal/auth"
	"github.com/mattjoyce/livebridge/internal/command"
	"github.com/mattjoyce/livebridge/internal/events"
	"github.com/mattjoyce/livebridge/internal/journal"
	"github.com/mattjoyce/livebridge/internal/session"
)

// CommandLister exposes the registered catalogue.
type CommandLister interface {
	Entries() []command.Entry
}

// ConnectionCounter reports live client connections on the command socket.
type ConnectionCounter interface {
	Connections() int
}

// JournalReader reads recent dispatches.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// EventSource is the event hub as seen by the API.
type EventSource interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// SessionViewer exposes the host's published session snapshot.
type SessionViewer interface {
	Snapshot() *session.Snapshot
}

// Config holds API server configuration
type Config struct {
	Listen string
	// Token, when set, is the bearer token required on every route but /healthz.
	Token string
	// KeepAlive is the SSE comment interval. Zero means 15s.
	KeepAlive time.Duration
}

// Deps are the read-only views the API serves. Journal and Session may be nil.
type Deps struct {
	Commands    CommandLister
	Connections ConnectionCounter
	Journal     JournalReader
	Events      EventSource
	Session     SessionViewer
}

// Server represents the HTTP status API server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.KeepAlive <= 0 {
		config.KeepAlive = 15 * time.Second
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(auth.Require(s.config.Token, func(w http.ResponseWriter, err error) {
			s.writeError(w, http.StatusUnauthorized, err.Error())
		}))
		r.Get("/commands", s.handleCommands)
		r.Get("/session", s.handleSession)
		r.Get("/journal", s.handleJournal)
		r.Get("/events", s.handleEvents)
		r.Get("/events/stream", s.handleEventStream)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
