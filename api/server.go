/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/policies/*        Policy, snapshot and audit reads; fleet mutations
  /api/vehicles/*        Vehicle reads and risk updates
  /api/recalculations/*  Job submission and status
  /api/layers            Reinsurance configuration
  /api/bootstrap         Demo fixture (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Get("/{id}/snapshots", h.ListSnapshots)
			r.Get("/{id}/snapshots/latest", h.LatestSnapshot)
			r.Get("/{id}/audit", h.GetAuditTrail)
			r.Post("/{id}/vehicles", h.AddVehicle)
			r.Delete("/{id}/vehicles/{vehicleID}", h.RemoveVehicle)
		})

		// Vehicle routes
		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/{id}", h.GetVehicle)
			r.Post("/{id}/risk", h.UpdateRiskScore)
		})

		// Recalculation routes
		r.Route("/recalculations", func(r chi.Router) {
			r.Post("/", h.EnqueueRecalculation)
			r.Get("/{id}", h.GetRecalculation)
			r.Delete("/{id}", h.CancelRecalculation)
		})

		// Configuration routes
		r.Get("/layers", h.ListLayers)

		// Demo fixture (dev only)
		r.Post("/bootstrap", h.Bootstrap)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "fleet premium engine",
			"api":     "/api",
		})
	})

	return r
}
