/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Logger:     Request logging through logrus
  4. CORS:       Cross-origin requests for frontend
  5. Actor:      X-Actor-ID header into the request context

ROUTE GROUPS:
  /api/personnel/*      Personnel records, lifecycle, assignments
  /api/roles/*          Role catalogue
  /api/units/*          Domains and divisions
  /api/audit            Audit trail
  /api/dashboard/*      Overview and expiry warnings
  /api/admin/*          Expiry sweep
  /api/scenarios/*      Demo scenarios
  /healthz              Liveness (storage ping)
  /metrics              Prometheus exposition (configurable)

SECURITY NOTE:
  No authentication middleware. The actor header is trusted as given and
  must be set by an authenticating proxy in production.

SEE ALSO:
  - handlers.go, handlers_admin.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures the outer HTTP surface.
type RouterOptions struct {
	CORSOrigins    []string
	MetricsEnabled bool
	MetricsPath    string

	// Health is called by /healthz. Nil reports healthy.
	Health func(ctx context.Context) error
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
	r.Use(actorMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(req.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Storage unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if opts.MetricsEnabled {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Personnel routes
		r.Route("/personnel", func(r chi.Router) {
			r.Get("/", h.ListPersonnel)
			r.Post("/", h.CreatePersonnel)
			r.Route("/{token}", func(r chi.Router) {
				r.Get("/", h.GetPersonnel)
				r.Patch("/", h.UpdatePersonnel)
				r.Delete("/", h.DeletePersonnel)
				r.Post("/restore", h.RestorePersonnel)

				r.Post("/convert", h.ConvertPersonnel)
				r.Post("/extend", h.ExtendInternship)
				r.Post("/end-internship", h.EndInternship)
				r.Post("/retire", h.RetirePersonnel)

				r.Get("/roles", h.ListAssignments)
				r.Post("/roles", h.AssignRole)
				r.Delete("/roles/{roleID}", h.UnassignRole)
				r.Get("/conversions", h.ListConversions)
			})
		})

		// Role routes
		r.Route("/roles", func(r chi.Router) {
			r.Get("/", h.ListRoles)
			r.Post("/", h.CreateRole)
			r.Get("/{id}", h.GetRole)
			r.Patch("/{id}", h.UpdateRole)
			r.Delete("/{id}", h.DeleteRole)
			r.Post("/{id}/restore", h.RestoreRole)
		})

		// Unit routes
		r.Route("/units", func(r chi.Router) {
			r.Get("/", h.ListUnits)
			r.Post("/", h.CreateUnit)
			r.Get("/{id}", h.GetUnit)
			r.Patch("/{id}", h.UpdateUnit)
			r.Delete("/{id}", h.DeleteUnit)
			r.Post("/{id}/restore", h.RestoreUnit)
		})

		r.Get("/audit", h.QueryAudit)

		// Dashboard routes
		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/stats", h.DashboardStats)
			r.Get("/warnings", h.PublishedWarnings)
			r.Get("/upcoming", h.UpcomingExpiries)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/sweep", h.SweepStatus)
			r.Post("/sweep", h.RunSweep)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
