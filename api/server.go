/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from X-Forwarded-For / X-Real-IP
  3. Logger:     zap request logging (middleware.go)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the HR frontend
  6. RateLimit:  Per-IP token bucket (middleware.go)

ROUTE GROUPS:
  /api/employees/*      Employees, balances, history, submissions
  /api/requests/*       Listing and decisions
  /api/maintenance      Job trigger
  /api/holidays/*       Calendar and .ics feed
  /api/business-days    Business-day counter
  /api/history/export   XLSX audit export
  /api/scenarios/*      Demo data (server.demo only)
  /healthz              Liveness

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterOptions carries the server section of the configuration.
type RouterOptions struct {
	AllowedOrigins []string
	RateLimit      float64 // requests per second per IP, 0 disables
	RateBurst      int
	Demo           bool // mounts /api/scenarios
	// Ping backs /healthz when set, typically the store's Ping.
	Ping   func(context.Context) error
	Logger *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	logger := opts.Logger
	if logger == nil {
		logger = zap.L()
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))
	r.Use(RateLimitByIP(rate.Limit(opts.RateLimit), opts.RateBurst))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Ping != nil {
			if err := opts.Ping(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "store unavailable", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/history", h.GetEmployeeHistory)
			r.Get("/{id}/requests", h.ListEmployeeRequests)
			r.Post("/{id}/requests", h.SubmitRequest)
		})

		// Request approval routes
		r.Route("/requests", func(r chi.Router) {
			r.Get("/", h.ListRequests)
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
		})

		r.Post("/maintenance", h.RunMaintenance)

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Get("/{year}.ics", h.HolidayFeed)
		})
		r.Get("/business-days", h.BusinessDays)

		r.Get("/history/export", h.ExportHistory)

		// Scenario routes
		if opts.Demo {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	return r
}
