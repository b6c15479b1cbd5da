/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/escrow/*    Escrow lifecycle and batch reversal
  /api/rewards/*   Reward distribution
  /api/wallet/*    Multi-currency balances
  /api/limits/*    Spending limits
  /api/refunds/*   Refund tracking
  /api/events/*    Audit event stream
  /metrics         Prometheus exposition

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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/ledger-engine/engine"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Caller", "X-Signature"},
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/escrow", func(r chi.Router) {
			r.Post("/open", h.OpenEscrow)
			r.Post("/batch-reverse", h.BatchReverse)
			r.Get("/counters", h.GetCounters(func(req *http.Request) (engine.Counters, error) {
				return h.Escrow.AggregateCounters(req.Context())
			}))
			r.Post("/admin", h.SetAdmin(func(req *http.Request, caller, newAdmin engine.Caller) error {
				return h.Escrow.SetAdmin(req.Context(), caller, newAdmin)
			}))
			r.Get("/user/{account}", h.GetUserEscrows)
			r.Get("/{id}", h.GetEscrow)
			r.Post("/{id}/release", h.ReleaseEscrow)
			r.Post("/{id}/reverse", h.ReverseEscrow)
		})

		r.Route("/rewards", func(r chi.Router) {
			r.Post("/distribute", h.Distribute)
			r.Get("/counters", h.GetCounters(func(req *http.Request) (engine.Counters, error) {
				return h.Rewards.AggregateCounters(req.Context())
			}))
			r.Post("/admin", h.SetAdmin(func(req *http.Request, caller, newAdmin engine.Caller) error {
				return h.Rewards.SetAdmin(req.Context(), caller, newAdmin)
			}))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Post("/batch-update", h.WalletBatchUpdate)
			r.Get("/counters", h.GetCounters(func(req *http.Request) (engine.Counters, error) {
				return h.Wallet.AggregateCounters(req.Context())
			}))
			r.Post("/admin", h.SetAdmin(func(req *http.Request, caller, newAdmin engine.Caller) error {
				return h.Wallet.SetAdmin(req.Context(), caller, newAdmin)
			}))
			r.Get("/{user}/{currency}", h.GetWalletBalance)
		})

		r.Route("/limits", func(r chi.Router) {
			r.Post("/batch-update", h.LimitsBatchUpdate)
			r.Get("/counters", h.GetCounters(func(req *http.Request) (engine.Counters, error) {
				return h.Limits.AggregateCounters(req.Context())
			}))
			r.Post("/admin", h.SetAdmin(func(req *http.Request, caller, newAdmin engine.Caller) error {
				return h.Limits.SetAdmin(req.Context(), caller, newAdmin)
			}))
			r.Get("/{user}", h.GetLimit)
		})

		r.Route("/refunds", func(r chi.Router) {
			r.Post("/record", h.RecordTransaction)
			r.Post("/batch", h.RefundBatch)
			r.Get("/total", h.GetTotalRefunded)
			r.Get("/counters", h.GetCounters(func(req *http.Request) (engine.Counters, error) {
				return h.Refunds.AggregateCounters(req.Context())
			}))
			r.Post("/admin", h.SetAdmin(func(req *http.Request, caller, newAdmin engine.Caller) error {
				return h.Refunds.SetAdmin(req.Context(), caller, newAdmin)
			}))
			r.Get("/{id}", h.GetTransaction)
		})

		r.Get("/events/recent", h.RecentEvents)
	})

	// Prometheus exposition
	r.Handle("/metrics", promhttp.Handler())

	return r
}
