// Package api is the Request Facade: HTTP handlers and the WebSocket
// watch stream that translate external requests into transition or
// query calls against the coordination engine. The facade performs no
// business logic beyond request validation and translation; every
// admission decision lives in internal/admission, every mutation in
// internal/engine.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jaxxstorm/smokestack/internal/apiversion"
	"github.com/jaxxstorm/smokestack/internal/config"
	"github.com/jaxxstorm/smokestack/internal/logger"
)

// Server represents the HTTP API server
type Server struct {
	router *chi.Mux
	server *http.Server
	engine Engine
	logger *zap.Logger
}

// New creates a new HTTP API server
func New(cfg *config.HTTPConfig, metricsCfg *config.MetricsConfig, eng Engine, log *zap.Logger) *Server {
	log = log.With(zap.String("component", "api"))

	r := chi.NewRouter()

	// Base middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.HTTPMiddleware(log))
	r.Use(logger.CorrelationIDMiddleware)
	r.Use(middleware.Recoverer)

	srv := &Server{
		router: r,
		engine: eng,
		logger: log,
		server: &http.Server{
			Addr:         cfg.Address(),
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
	}

	// Register routes
	srv.registerRoutes(metricsCfg)

	return srv
}

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes(metricsCfg *config.MetricsConfig) {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ready", s.handleReady)

	if metricsCfg != nil && metricsCfg.Enabled {
		s.router.Handle(metricsCfg.Path, promhttp.Handler())
	}

	s.router.Route("/"+apiversion.Current, func(r chi.Router) {
		// Operation routes
		r.Post("/operations", s.handleCreateOperation)
		r.Get("/operations", s.handleListOperations)
		r.Get("/operations/{id}", s.handleGetOperation)
		r.Patch("/operations/{id}", s.handleEditOperation)
		r.Post("/operations/{id}/transition", s.handleTransition)
		r.Post("/operations/{id}/approve", s.handleApprove)
		r.Put("/operations/{id}/approvals", s.handleSetApprovals)
		r.Patch("/operations/{id}/annotations", s.handleEditAnnotations)
		r.Post("/operations/{id}/comments", s.handleAddComment)
		r.Get("/operations/{id}/comments", s.handleListComments)
		r.Get("/operations/{id}/history", s.handleOperationHistory)
		r.Get("/operations/{id}/description.yaml", s.handleExportDescription)
		r.Get("/operations/{id}/notes.html", s.handleNotesHTML)

		// History Log query across all operations
		r.Get("/history", s.handleQueryHistory)

		// Subscription routes
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Post("/subscriptions", s.handleSubscribe)
		r.Delete("/subscriptions", s.handleUnsubscribe)

		// Entity routes
		r.Post("/components", s.handleCreateComponent)
		r.Get("/components", s.handleListComponents)
		r.Get("/components/{name}", s.handleGetComponent)
		r.Delete("/components/{name}", s.handleDeleteComponent)

		r.Post("/tags", s.handleCreateTag)
		r.Get("/tags", s.handleListTags)
		r.Get("/tags/{name}", s.handleGetTag)
		r.Delete("/tags/{name}", s.handleDeleteTag)

		r.Post("/groups", s.handleCreateGroup)
		r.Get("/groups", s.handleListGroups)
		r.Get("/groups/{name}", s.handleGetGroup)
		r.Delete("/groups/{name}", s.handleDeleteGroup)

		r.Put("/users/{name}", s.handlePutUser)
		r.Get("/users/{name}", s.handleGetUser)

		// System Sink routes
		r.Get("/sinks", s.handleListSinks)
		r.Post("/sinks", s.handleCreateSink)
		r.Delete("/sinks/{id}", s.handleDeleteSink)
	})

	// WebSocket watch stream; registered outside the version tree so the
	// path matches the documented GET /ws/watch contract.
	s.router.Get("/ws/watch", s.handleWatch)

	s.router.Route("/api", func(r chi.Router) {
		r.Handle("/", http.HandlerFunc(s.handleVersionRequired))
		r.Handle("/*", http.HandlerFunc(s.handleVersionRequired))
	})

	s.router.Route("/v{version}", func(r chi.Router) {
		r.Handle("/", http.HandlerFunc(s.handleUnsupportedVersion))
		r.Handle("/*", http.HandlerFunc(s.handleUnsupportedVersion))
	})
}

// handleHealth is the liveness check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// handleReady is the readiness check endpoint. The engine is not ready
// while the persistence journal is degraded: reads and event streaming
// continue, but writes are refused, so load balancers should stop
// routing new mutations here.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if s.engine.IsReady() {
		checks["engine"] = "ready"
	} else {
		checks["engine"] = "journal_degraded"
		response := map[string]interface{}{
			"status": "unavailable",
			"checks": checks,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(response)
		return
	}

	response := map[string]interface{}{
		"status": "ready",
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// Router exposes the configured router, mainly for tests that drive the
// facade through httptest without binding a socket.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", zap.Error(err))
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server shut down successfully")
	return nil
}
