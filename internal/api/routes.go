// Package api provides the REST API for the judge service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/kodejudge/kodejudge/internal/config"
	"github.com/kodejudge/kodejudge/internal/ratelimit"
)

// Server is the HTTP server for the judge API.
type Server struct {
	config  *config.Config
	router  *chi.Mux
	handler *Handler
}

// NewServer creates a server wiring the store, queue and worker
// registry into the HTTP handlers.
func NewServer(cfg *config.Config, store Store, q JobQueue, workers WorkerLister, rdb *redis.Client) *Server {
	s := &Server{
		config:  cfg,
		router:  chi.NewRouter(),
		handler: NewHandler(cfg, store, q, workers, rdb),
	}
	s.setupRoutes(rdb)
	return s
}

func (s *Server) setupRoutes(rdb *redis.Client) {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.Server.WriteTimeout))

	limiter := ratelimit.NewLimiter(rdb, s.config.Redis.Prefix, s.config.RateLimit.Strategy)
	r.Use(ratelimit.Middleware(limiter, &s.config.RateLimit))

	r.Get("/", s.handler.Root)

	r.Route("/submissions", func(r chi.Router) {
		r.Post("/", s.handler.CreateSubmission)
		r.Get("/", s.handler.ListSubmissions)
		r.Post("/batch", s.handler.CreateSubmissionBatch)
		r.Get("/batch", s.handler.GetSubmissionBatch)
		r.Get("/{id}", s.handler.GetSubmission)
		r.Delete("/{id}", s.handler.DeleteSubmission)
	})

	r.Route("/languages", func(r chi.Router) {
		r.Get("/", s.handler.ListLanguages)
		r.Get("/{id}", s.handler.GetLanguage)
	})

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.handler.Health)
		r.Get("/database", s.handler.HealthDatabase)
		r.Get("/redis", s.handler.HealthRedis)
		r.Get("/workers", s.handler.HealthWorkers)
		r.Get("/info", s.handler.HealthInfo)
		r.Get("/ping", s.handler.HealthPing)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router returns the underlying chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}
