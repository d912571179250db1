// Package web provides the HTTP shell of the asset catalog: category and
// record routes, spreadsheet import, xlsx downloads and live updates.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/localfinder/internal/config"
	"github.com/JonMunkholm/localfinder/internal/core"
	localmw "github.com/JonMunkholm/localfinder/internal/web/middleware"
)

// Dependencies are the services the HTTP shell is built on.
type Dependencies struct {
	Catalogs map[string]*core.Catalog
	Importer *core.Importer
	Audit    core.AuditSink
	// Ping reports store health for /healthz.
	Ping func(ctx context.Context) error
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP server for the catalog.
type Server struct {
	cfg      *config.Config
	catalogs map[string]*core.Catalog
	order    []string
	importer *core.Importer
	audit    core.AuditSink
	ping     func(ctx context.Context) error
	metrics  http.Handler

	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	s := &Server{
		cfg:      cfg,
		catalogs: deps.Catalogs,
		importer: deps.Importer,
		audit:    deps.Audit,
		ping:     deps.Ping,
		metrics:  deps.Metrics,
		router:   chi.NewRouter(),
	}
	for id := range s.catalogs {
		s.order = append(s.order, id)
	}
	sort.Strings(s.order)

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(localmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(localmw.Operator(s.cfg.Security.RequireOperator))
	s.router.Use(localmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/audit-log", s.handleAuditLog)
		r.Get("/categories", s.handleListCategories)

		r.Route("/categories/{categoryID}", func(r chi.Router) {
			// Long-lived streams run without the request timeout.
			r.Get("/ws", s.handleCatalogStream)
			r.Get("/import/progress", s.handleImportProgress)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

				r.Get("/fields", s.handleListFields)
				r.Get("/records", s.handleListRecords)
				r.Post("/records", s.handleCreateRecord)
				r.Get("/records/{recordID}", s.handleGetRecord)
				r.Delete("/records/{recordID}", s.handleDeleteRecord)

				r.Get("/template.xlsx", s.handleDownloadTemplate)
				r.Get("/export.xlsx", s.handleExportRecords)

				r.Post("/import", s.handleImportUpload)
				r.Get("/import", s.handleImportStatus)
				r.Delete("/import", s.handleImportDiscard)
				r.Put("/import/mapping", s.handleImportMapping)
				r.Post("/import/commit", s.handleImportCommit)
				r.Post("/import/cancel", s.handleImportCancel)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// catalogFor resolves the {categoryID} route parameter.
func (s *Server) catalogFor(r *http.Request) (*core.Catalog, error) {
	id := chi.URLParam(r, "categoryID")
	c, ok := s.catalogs[id]
	if !ok {
		return nil, &categoryError{id: id}
	}
	return c, nil
}

type categoryError struct{ id string }

func (e *categoryError) Error() string { return "unknown category " + e.id }
func (e *categoryError) Unwrap() error { return core.ErrUnknownCategory }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	resp := HealthResponse{Status: "ok"}
	if s.importer != nil {
		gate := s.importer.Gate().Status()
		resp.Imports = &gate
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse is the /healthz body. Imports reports commit slot usage.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Imports *core.CommitGateStatus `json:"imports,omitempty"`
}

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}
