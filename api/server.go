/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the kitchen UI

ROUTE GROUPS:
  /api/levels/*         Stock levels, history, replay check
  /api/purchases        Invoice batches
  /api/adjustments      Quick adjustments
  /api/usage            Recipe consumption
  /api/snapshots/*      Snapshots
  /api/reports/*        Read-side reports
  /api/ingredients      Catalog
  /api/scenarios/*      Demo kitchens
  /metrics              Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/stockledger/serve.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/levels", func(r chi.Router) {
			r.Get("/", h.ListLevels)
			r.Get("/low", h.ListLowStock)
			r.Get("/value", h.GetTotalValue)
			r.Put("/{ingredientID}", h.UpdateLevel)
			r.Get("/{ingredientID}/history", h.GetHistory)
			r.Get("/{ingredientID}/verify", h.VerifyLevel)
		})

		r.Post("/purchases", h.RecordPurchase)
		r.Post("/adjustments", h.CreateAdjustment)
		r.Post("/usage", h.RecordUsage)

		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", h.ListSnapshots)
			r.Post("/", h.TakeSnapshot)
			r.Get("/latest", h.GetLatestSnapshot)
			r.Get("/{id}/items", h.GetSnapshotItems)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/inventory", h.InventoryReport)
			r.Get("/low-stock", h.LowStockReport)
			r.Get("/high-value", h.HighValueReport)
			r.Get("/monthly", h.MonthlyReport)
		})

		r.Route("/ingredients", func(r chi.Router) {
			r.Get("/", h.ListIngredients)
			r.Post("/", h.CreateIngredient)
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
