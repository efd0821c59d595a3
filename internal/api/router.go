// Package api exposes the digest trigger and read endpoints over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leeaandrob/xrpdigest/internal/scheduler"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultTriggerRPM     = 6
	DefaultTriggerTimeout = 10 * time.Minute
)

// Config holds the HTTP server settings.
type Config struct {
	Addr       string
	CronSecret string

	// Trigger throttle, in requests per minute with the given burst.
	TriggerRPM   float64
	TriggerBurst int

	// TriggerTimeout bounds a run started over HTTP.
	TriggerTimeout time.Duration
}

// Server represents the API server.
type Server struct {
	router    *chi.Mux
	handlers  *Handlers
	scheduler *scheduler.Scheduler
	addr      string
	timeout   time.Duration
	server    *http.Server
}

// NewServer creates a new API server. sched may be nil when the in-process
// scheduler is disabled.
func NewServer(cfg Config, runner scheduler.Runner, store DigestReader, sched *scheduler.Scheduler) *Server {
	if cfg.TriggerRPM <= 0 {
		cfg.TriggerRPM = DefaultTriggerRPM
	}
	if cfg.TriggerBurst <= 0 {
		cfg.TriggerBurst = 1
	}
	if cfg.TriggerTimeout <= 0 {
		cfg.TriggerTimeout = DefaultTriggerTimeout
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.TriggerRPM/60.0), cfg.TriggerBurst)
	handlers := NewHandlers(store, runner, cfg.CronSecret, limiter)

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv := &Server{
		router:    r,
		handlers:  handlers,
		scheduler: sched,
		addr:      cfg.Addr,
		timeout:   cfg.TriggerTimeout,
	}

	r.Route("/api", func(r chi.Router) {
		// Read routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/health", handlers.HealthCheck)
			r.Get("/stats", handlers.GetStats)

			r.Route("/digests", func(r chi.Router) {
				r.Get("/", handlers.GetDigests)
				r.Get("/{slug}", handlers.GetDigestBySlug)
				r.Get("/{slug}/html", handlers.GetDigestHTML)
			})
		})

		// Trigger, invoked by an external cron
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.TriggerTimeout))
			r.Get("/cron/weekly-digest", handlers.TriggerWeeklyDigest)
			r.Post("/cron/weekly-digest", handlers.TriggerWeeklyDigest)
		})

		// Job management
		r.Route("/admin", func(r chi.Router) {
			r.Use(handlers.RequireSecret)
			r.Get("/jobs", srv.AdminGetJobs)
			r.Post("/jobs/{name}/run", srv.AdminRunJob)
		})
	})

	return srv
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: s.timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// ============================================================================
// ADMIN HANDLERS
// ============================================================================

// AdminGetJobs returns the status of all scheduled jobs.
func (s *Server) AdminGetJobs(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		respondError(w, http.StatusServiceUnavailable, "Scheduler not available")
		return
	}

	jobs := s.scheduler.GetJobStatus()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// AdminRunJob runs a specific job by name.
func (s *Server) AdminRunJob(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		respondError(w, http.StatusServiceUnavailable, "Scheduler not available")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "Job name is required")
		return
	}

	err := s.scheduler.RunJobNow(name)
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, scheduler.ErrJobRunning):
		respondError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"status":  "ok",
		"message": "Job triggered: " + name,
	})
}
