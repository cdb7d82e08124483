package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"timetrack/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	tasks      *core.TaskManager
	timer      *core.TimeEntryCoordinator
	scheduler  *core.Scheduler
	mcpHandler http.Handler
	logger     *slog.Logger
	location   *time.Location
}

// NewServer constructs the HTTP API server. mcpHandler is mounted at /mcp
// when non-nil.
func NewServer(addr string, tasks *core.TaskManager, timer *core.TimeEntryCoordinator, scheduler *core.Scheduler, mcpHandler http.Handler, logger *slog.Logger, location *time.Location) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)

	if location == nil {
		location = time.Local
	}
	s := &Server{
		router:     router,
		tasks:      tasks,
		timer:      timer,
		scheduler:  scheduler,
		mcpHandler: mcpHandler,
		logger:     logger,
		location:   location,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if s.mcpHandler != nil {
		s.router.Handle("/mcp", s.mcpHandler)
	}

	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleCreateTask)

			r.Route("/{taskID}", func(r chi.Router) {
				r.Get("/", s.handleGetTask)
				r.Put("/", s.handleUpdateTask)
				r.Get("/time-entries", s.handleListTimeEntries)
			})
		})

		r.Route("/time-entries", func(r chi.Router) {
			r.Post("/start", s.handleStartTimeEntry)
			r.Post("/{taskID}/stop", s.handleStopTimeEntry)
		})

		r.Route("/sweep", func(r chi.Router) {
			r.Get("/", s.handleSweepSchedule)
			r.Post("/", s.handleRunSweep)
		})
	})
}
