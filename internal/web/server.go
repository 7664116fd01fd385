package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readyTimeout = 3 * time.Second

// Config holds server configuration
type Config struct {
	Port           int
	AdminToken     string
	AllowedOrigins []string
	Version        string
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	admin      chi.Router
	httpServer *http.Server
	config     *Config
	listener   net.Listener
	hub        *Hub // WebSocket Hub
	checks     []readinessCheck
}

type readinessCheck struct {
	name string
	fn   func(ctx context.Context) error
}

// NewServer creates a new HTTP server. hub may be nil.
func NewServer(cfg *Config, hub *Hub) *Server {
	router := chi.NewRouter()

	srv := &Server{
		router: router,
		config: cfg,
		hub:    hub,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	version := s.config.Version
	if version == "" {
		version = "dev"
	}

	// Health endpoint
	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprintf(w, `{"status":"ok","version":%q}`, version); err != nil {
			_ = err // Client disconnected
		}
	})

	s.router.Get("/ready", s.ready)
	s.router.Handle("/metrics", promhttp.Handler())

	// admin api and dashboard socket share the bearer token
	s.router.Group(func(r chi.Router) {
		r.Use(RequireToken(s.config.AdminToken))
		if s.hub != nil {
			r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
				ServeWs(s.hub, w, r)
			})
		}
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			s.admin = r
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s.httpServer.Serve(listener)
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// BaseURL returns the server's base URL
func (s *Server) BaseURL() string {
	if s.listener != nil {
		return fmt.Sprintf("http://%s", s.listener.Addr().String())
	}
	return fmt.Sprintf("http://localhost:%d", s.config.Port)
}

// RegisterStatsHandler registers stats API handlers
func (s *Server) RegisterStatsHandler(handler interface{}) {
	type statsHandler interface {
		GetStats(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(statsHandler); ok {
		s.admin.Get("/stats", h.GetStats)
	}
}

// RegisterSessionHandler registers the secondary session routes
func (s *Server) RegisterSessionHandler(handler interface{}) {
	type sessionHandler interface {
		GetStatus(w http.ResponseWriter, r *http.Request)
		StartQR(w http.ResponseWriter, r *http.Request)
		CancelQR(w http.ResponseWriter, r *http.Request)
	}

	if h, ok := handler.(sessionHandler); ok {
		s.admin.Route("/session", func(r chi.Router) {
			r.Get("/status", h.GetStatus)
			r.Post("/qr", h.StartQR)
			r.Delete("/qr", h.CancelQR)
		})
	}
}

// MountAPI hands every /api/v1 path without a chi route of its own to h,
// behind the admin token.
func (s *Server) MountAPI(h http.Handler) {
	s.admin.Mount("/", h)
}

// RegisterPayPalWebhook mounts the PayPal webhook. It authenticates with its
// own shared token, not the admin token.
func (s *Server) RegisterPayPalWebhook(handler http.Handler) {
	s.router.With(middleware.Timeout(30*time.Second)).
		Method(http.MethodPost, "/api/v1/payments/paypal/webhook", handler)
}

// AddReadinessCheck registers a dependency checked by /ready.
func (s *Server) AddReadinessCheck(name string, fn func(ctx context.Context) error) {
	s.checks = append(s.checks, readinessCheck{name: name, fn: fn})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := http.StatusOK
	result := make(map[string]string, len(s.checks))
	for _, c := range s.checks {
		if err := c.fn(ctx); err != nil {
			result[c.name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		result[c.name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(result)
}

// Router returns the underlying Chi router for external route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}
