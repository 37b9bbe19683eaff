/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. zap logger: Structured request logging
  4. CORS:       Cross-origin requests for admin frontends

ROUTE GROUPS:
  /api/tenants/*   Tenant config, accounts, rules, bill generation
  /api/accounts/*  Balances, ledgers, statements
  /api/bills/*     Bills and payments
  /api/entries/*   Ledger entry reversal
  /api/admin/*     Batch jobs and run history
  /healthz         Liveness probe

SECURITY NOTE:
  No authentication middleware. Actor attribution comes from headers
  set by the fronting proxy. Do not expose directly to the internet.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor-Id", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Tenant routes
		r.Route("/tenants", func(r chi.Router) {
			r.Get("/", h.ListTenants)
			r.Post("/", h.CreateTenant)
			r.Get("/{id}", h.GetTenant)
			r.Put("/{id}/config", h.UpdateConfig)

			r.Get("/{id}/accounts", h.ListAccounts)
			r.Post("/{id}/accounts", h.CreateAccount)

			r.Get("/{id}/rules", h.ListRules)
			r.Post("/{id}/rules", h.CreateRule)

			r.Get("/{id}/bills", h.ListBills)
			r.Post("/{id}/bills/preview", h.PreviewBills)
			r.Post("/{id}/bills/generate", h.GenerateBills)
		})

		// Account routes
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}", h.GetAccount)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Get("/{id}/statement", h.GetStatement)
			r.Get("/{id}/bills", h.GetAccountBills)
			r.Post("/{id}/adjustments", h.RecordAdjustment)
		})

		// Rule routes
		r.Route("/rules", func(r chi.Router) {
			r.Put("/{id}", h.UpdateRule)
			r.Delete("/{id}", h.ArchiveRule)
		})

		// Bill routes
		r.Route("/bills", func(r chi.Router) {
			r.Get("/{id}", h.GetBill)
			r.Post("/{id}/payments", h.RecordPayment)
		})

		// Ledger entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Post("/{id}/reverse", h.ReverseEntry)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/tenants/{id}/interest", h.RunInterest)
			r.Post("/tenants/{id}/sweep", h.RunSweep)
			r.Get("/tenants/{id}/runs", h.ListRuns)
		})
	})

	return r
}

// requestLogger logs each request with method, path, status, and
// duration through the shared zap logger.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
