package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// System metrics (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - operator must be logged in
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Post("/probe", s.handleProbeDevice)
				})
			})

			// Audio zone endpoints
			r.Route("/zones", func(r chi.Router) {
				r.Get("/", s.handleListZones)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetZone)
					r.Post("/command", s.handleZoneCommand)
					r.Post("/reload", s.handleReloadZone)
				})
			})

			// Matrix switching endpoints
			r.Route("/switch", func(r chi.Router) {
				r.Post("/", s.handleSwitch)
				r.Post("/sweep", s.handleRunSweep)
			})

			// Command trail
			r.Get("/audit", s.handleListAudit)

			// WebSocket (auth via ticket, validated in handler)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
