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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/patients/*       Patient management + activation lifecycle
  /api/supervisors/*    Supervisor management
  /api/sessions/*       Calendar sessions
  /api/payments/*       Incoming and outgoing payments
  /api/billing/*        Monthly billing view + export
  /api/supervision/*    Supervisor payout view
  /api/rent             Rent configuration and rollup
  /api/dashboard        Working period summary
  /api/fx               Exchange rate
  /api/scenarios/*      Demo scenarios
  /*                    Static files (frontend)

STATIC FILE SERVING:
  In production, serves the built frontend from web/dist/.
  Falls back to index.html for client-side routing.

SECURITY NOTE:
  Single-tenant deployment behind the practitioner's own machine. No
  authentication middleware.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

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
		// Patient routes
		r.Route("/patients", func(r chi.Router) {
			r.Get("/", h.ListPatients)
			r.Post("/", h.CreatePatient)
			r.Get("/{id}", h.GetPatient)
			r.Put("/{id}", h.UpdatePatient)
			r.Delete("/{id}", h.DeletePatient)
			r.Post("/{id}/deactivate", h.DeactivatePatient)
			r.Post("/{id}/reactivate", h.ReactivatePatient)
		})

		// Supervisor routes
		r.Route("/supervisors", func(r chi.Router) {
			r.Get("/", h.ListSupervisors)
			r.Post("/", h.CreateSupervisor)
			r.Get("/{id}", h.GetSupervisor)
			r.Delete("/{id}", h.DeleteSupervisor)
		})

		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)
			r.Put("/{id}/status", h.UpdateSessionStatus)
			r.Delete("/{id}", h.DeleteSession)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Route("/received", func(r chi.Router) {
				r.Get("/", h.ListPaymentsReceived)
				r.Post("/", h.CreatePaymentReceived)
				r.Delete("/{id}", h.DeletePaymentReceived)
			})
			r.Route("/made", func(r chi.Router) {
				r.Get("/", h.ListPaymentsMade)
				r.Post("/", h.CreatePaymentMade)
				r.Delete("/{id}", h.DeletePaymentMade)
			})
		})

		// Billing routes
		r.Route("/billing", func(r chi.Router) {
			r.Get("/monthly", h.GetMonthlyBilling)
			r.Post("/monthly/{patientID}/sent", h.SetSentToGuardian)
			r.Get("/export", h.ExportMonthlyBilling)
		})

		// Supervision routes
		r.Route("/supervision", func(r chi.Router) {
			r.Get("/monthly", h.GetMonthlySupervision)
		})

		// Rent routes
		r.Route("/rent", func(r chi.Router) {
			r.Get("/", h.GetRent)
			r.Put("/", h.SaveRent)
		})

		// Dashboard and FX
		r.Get("/dashboard", h.GetDashboard)
		r.Get("/fx", h.GetFXRate)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	// Serve static files (frontend)
	staticDir := "./web/dist"
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		// Try relative to executable
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}

	if _, err := os.Stat(staticDir); err == nil {
		fileServer := http.FileServer(http.Dir(staticDir))
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			fullPath := filepath.Join(staticDir, path)

			// Check if file exists
			if _, err := os.Stat(fullPath); os.IsNotExist(err) {
				// SPA routing: serve index.html
				http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
				return
			}
			fileServer.ServeHTTP(w, r)
		})
	} else {
		r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Practice Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Practice Engine API</h1>
<p>The frontend is not built yet. Run <code>cd web && npm install && npm run build</code></p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/patients">/api/patients</a> - List patients</li>
<li><a href="/api/billing/monthly">/api/billing/monthly</a> - Monthly billing</li>
<li><a href="/api/dashboard">/api/dashboard</a> - Period dashboard</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}
