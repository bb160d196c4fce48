/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP behind proxies
  3. Logger:     Request logging
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/customers/*   Customer records
  /api/companies/*   Employer records
  /api/rates/*       Monthly rate configurations
  /api/credits/*     Credit lifecycle, schedule, payments
  /api/admin/*       Operational sweeps
  /api/scenarios/*   Demo data loaders (development only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
		})

		r.Route("/companies", func(r chi.Router) {
			r.Get("/", h.ListCompanies)
			r.Post("/", h.CreateCompany)
		})

		r.Route("/rates", func(r chi.Router) {
			r.Get("/", h.ListRateConfigs)
			r.Post("/", h.CreateRateConfig)
			r.Get("/resolve", h.ResolveRateConfig)
		})

		r.Route("/credits", func(r chi.Router) {
			r.Get("/", h.ListCredits)
			r.Post("/", h.CreateCredit)

			r.Route("/{number}", func(r chi.Router) {
				r.Get("/", h.GetCredit)
				r.Post("/approve", h.ApproveCredit)
				r.Post("/reject", h.RejectCredit)
				r.Post("/cancel", h.CancelCredit)
				r.Post("/disburse", h.DisburseCredit)

				r.Get("/schedule", h.GetSchedule)
				r.Post("/schedule/regenerate", h.RegenerateSchedule)
				r.Get("/summary", h.GetSummary)

				r.Post("/payments", h.RecordPayment)
				r.Get("/transactions", h.GetTransactions)

				r.Get("/installments/{n}/late-interest", h.PreviewLateInterest)
				r.Post("/installments/{n}/late-interest", h.ApplyLateInterest)

				r.Post("/status/refresh", h.RefreshCreditStatus)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/status/refresh", h.RefreshAllStatuses)
		})

		// Demo data loaders. Development and demo environments only.
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
