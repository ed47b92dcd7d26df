/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind a proxy
  3. Logger:     zap request logging (requestLogger)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. Metrics:    Prometheus request counters and latency
  6. CORS:       Cross-origin requests for the booth frontend

ROUTE GROUPS:
  /api/auth/*, /api/healthz   Public (logout needs a session)
  /api/employees, /api/sales  Any signed-in operator
  /api/sales/{id}, reports,
  admin, scenarios            Admin only
  /metrics                    Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Session and role checks
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
func NewRouter(h *Handler, allowedOrigins ...string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(h.metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)
		r.Get("/healthz", h.Healthz)

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			r.Post("/auth/logout", h.Logout)
			r.Get("/employees/{id}", h.GetEmployee)

			// Sale routes
			r.Route("/sales", func(r chi.Router) {
				r.Post("/", h.SubmitSale)
				r.Post("/pending/{id}/confirm", h.ConfirmPending)
				r.Delete("/pending/{id}", h.CancelPending)

				r.With(requireAdmin).Put("/{id}", h.CorrectSale)
				r.With(requireAdmin).Get("/{id}/corrections", h.ListCorrections)
			})

			// Report routes
			r.Route("/reports", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/log", h.ReportLog)
				r.Get("/buyers", h.ReportBuyers)
				r.Get("/sellers", h.ReportSellers)
				r.Get("/summary", h.ReportSummary)
				r.Get("/verify", h.ReportVerify)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/accounts", h.CreateAccount)
			})

			// Scenario routes
			r.Route("/scenarios", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
			})
		})
	})

	return r
}
