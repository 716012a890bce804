// Package server exposes the operational HTTP surface: health, Prometheus
// metrics and read access to persisted calculation runs. The server never
// triggers calculations; those run through the CLI.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sawpanic/irrbb/internal/persistence"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimitRPS float64
	RateBurst    int
}

// DefaultConfig returns the default server configuration, bound locally.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
		RateLimitRPS: 10,
		RateBurst:    20,
	}
}

// Server is the ops HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	config  Config
	runs    persistence.RunsRepo
	limiter *rate.Limiter
}

// New creates the server. The runs repository may be nil when persistence is
// disabled; run endpoints then answer 404.
func New(config Config, registry *prometheus.Registry, runs persistence.RunsRepo) *Server {
	if config.RateLimitRPS <= 0 {
		config.RateLimitRPS = DefaultConfig().RateLimitRPS
	}
	if config.RateBurst <= 0 {
		config.RateBurst = DefaultConfig().RateBurst
	}

	s := &Server{
		router:  mux.NewRouter(),
		config:  config,
		runs:    runs,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimitRPS), config.RateBurst),
	}
	s.setupRoutes(registry)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes(registry *prometheus.Registry) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.rateLimitMiddleware)

	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	s.router.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the server until Shutdown or listen failure.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("Starting ops server")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down ops server")
	return s.server.Shutdown(ctx)
}

type ctxKey string

const requestIDKey ctxKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
