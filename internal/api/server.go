package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/tenancy/internal/api/handler"
	mw "github.com/edvin/tenancy/internal/api/middleware"
	"github.com/edvin/tenancy/internal/config"
	"github.com/edvin/tenancy/internal/core"
)

// Database is the slice of the core pool the server uses directly.
type Database interface {
	mw.Execer
	Ping(ctx context.Context) error
}

type Server struct {
	router         chi.Router
	logger         zerolog.Logger
	tenants        *core.TenantService
	coreDB         Database
	temporalClient temporalclient.Client
	cfg            *config.Config
	auditLogger    *mw.AuditLogger
}

func NewServer(logger zerolog.Logger, coreDB Database, temporalClient temporalclient.Client, cfg *config.Config, tenants *core.TenantService) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger,
		tenants:        tenants,
		coreDB:         coreDB,
		temporalClient: temporalClient,
		cfg:            cfg,
		auditLogger:    mw.NewAuditLogger(coreDB, logger),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(mw.Metrics)
}

func (s *Server) setupRoutes() {
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/readyz", s.handleReadyz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.Auth(s.cfg.APIKeys))
		r.Use(s.auditLogger.Middleware)

		// Tenants
		tenant := handler.NewTenant(s.tenants)
		r.Get("/tenants", tenant.List)
		r.Post("/tenants", tenant.Create)
		r.Get("/tenants/by-identifier/{identifier}", tenant.GetByIdentifier)
		r.Get("/tenants/{id}", tenant.Get)
		r.Post("/tenants/{id}/activate", tenant.Activate)
		r.Post("/tenants/{id}/deactivate", tenant.Deactivate)

		// Per-service database metadata and migration state
		svcDB := handler.NewServiceDatabase(s.tenants)
		r.Get("/tenants/{tenantID}/services/{serviceName}/database", svcDB.Database)
		r.Get("/tenants/{tenantID}/services/{serviceName}/migration-status", svcDB.MigrationStatus)
		r.Put("/tenants/{tenantID}/services/{serviceName}/migration-status", svcDB.UpdateMigrationStatus)
		r.Get("/tenants/{tenantID}/services/{serviceName}/readiness", svcDB.Readiness)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if err := s.coreDB.Ping(ctx); err != nil {
		checks["core_db"] = err.Error()
		healthy = false
	} else {
		checks["core_db"] = "ok"
	}

	if _, err := s.temporalClient.CheckHealth(ctx, &temporalclient.CheckHealthRequest{}); err != nil {
		checks["temporal"] = err.Error()
		healthy = false
	} else {
		checks["temporal"] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(checks)
}

// Close flushes pending audit entries.
func (s *Server) Close() {
	s.auditLogger.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
