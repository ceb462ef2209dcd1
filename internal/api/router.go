package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-plug/internal/panel"
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

	// Set before any Route call so subrouters inherit them.
	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	// Legacy routes called by the web page.
	r.Post("/turnOn", s.handleLegacyTurnOn)
	r.Post("/turnOff", s.handleLegacyTurnOff)
	r.Get("/status", s.handleLegacyStatus)

	// Prometheus exposition
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/plug", func(r chi.Router) {
			r.Get("/", s.handleGetPlug)
			r.Post("/on", s.handlePlugOn)
			r.Post("/off", s.handlePlugOff)
			r.Post("/toggle", s.handlePlugToggle)
			r.Get("/history", s.handlePlugHistory)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	// Control page; missing files fall through to the JSON 404.
	r.Handle("/*", panel.Handler(s.cfg.StaticDir, http.HandlerFunc(s.handleNotFound)))

	return r
}

// handleNotFound answers unknown routes with the legacy 404 envelope.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, legacyResponse{
		Success:   false,
		Message:   "requested resource not found",
		Path:      r.URL.Path,
		Timestamp: time.Now().UTC(),
	})
}

// handleMethodNotAllowed writes a 405 error response.
func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow,
		r.Method+" not allowed on "+r.URL.Path)
}
