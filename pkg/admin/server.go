// Package admin exposes the buffer pool's operational surface over HTTP: a
// JSON stats/debug console, Prometheus metrics, a live event stream over
// websockets and an optional read-only GraphQL window. It is an ops
// console, not a data path; the pool's real consumers call it directly.
package admin

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/metrics"
)

// Config holds admin server configuration settings
type Config struct {
	Host          string        // Server host address
	Port          int           // Server port
	ReadTimeout   time.Duration // HTTP read timeout
	WriteTimeout  time.Duration // HTTP write timeout
	IdleTimeout   time.Duration // HTTP idle timeout
	EnableLogging bool          // Enable request logging
	EnableMetrics bool          // Serve Prometheus metrics on /metrics
	EnableGraphQL bool          // Serve the GraphQL query endpoint
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          8080,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   120 * time.Second,
		EnableLogging: true,
		EnableMetrics: true,
		EnableGraphQL: false, // GraphQL disabled by default (opt-in feature)
	}
}

// Server is the admin HTTP server over one buffer pool.
type Server struct {
	config    *Config
	pool      *bufferpool.Pool
	disk      metrics.StatsSource
	router    *chi.Mux
	httpSrv   *http.Server
	hub       *EventHub
	startTime time.Time
}

// New creates an admin server over pool. disk may be nil; it only feeds
// the /stats and /metrics surfaces.
func New(config *Config, pool *bufferpool.Pool, disk metrics.StatsSource) (*Server, error) {
	s := &Server{
		config:    config,
		pool:      pool,
		disk:      disk,
		router:    chi.NewRouter(),
		hub:       NewEventHub(pool.Events()),
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	if config.EnableGraphQL {
		handler, err := NewGraphQLHandler(pool, disk)
		if err != nil {
			return nil, fmt.Errorf("failed to setup GraphQL routes: %w", err)
		}
		s.router.Post("/graphql", handler.ServeHTTP)
	}

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

// setupMiddleware configures HTTP middleware stack
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}
}

// setupRoutes configures HTTP routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)

	if s.config.EnableMetrics {
		exporter := metrics.NewPrometheusExporter(s.pool, s.disk)
		s.router.Method("GET", "/metrics", exporter.Handler())
	}

	s.router.Get("/ws/events", s.hub.HandleWS)

	s.router.Route("/pages/{id}", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Get("/", s.handleFrameInfo)
		r.Post("/fetch", s.handleFetch)
		r.Post("/unpin", s.handleUnpin)
		r.Post("/flush", s.handleFlush)
		r.Delete("/", s.handleDelete)
	})
}

// Router exposes the assembled handler, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start runs the server until an error or a termination signal, then shuts
// down gracefully.
func (s *Server) Start() error {
	fmt.Printf("pagecache admin listening on http://%s:%d\n", s.config.Host, s.config.Port)

	s.hub.Start()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		s.hub.Stop()
		return err
	case sig := <-sigChan:
		fmt.Printf("received signal: %v\n", sig)
		return s.Shutdown()
	}
}

// Shutdown stops the event hub and drains in-flight requests.
func (s *Server) Shutdown() error {
	s.hub.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}
