package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/camgate/internal/infrastructure/metrics"
)

// defaultWSPath is used when the WebSocket path is not configured.
const defaultWSPath = "/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", metrics.Handler())

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}

	r.Route("/api", func(r chi.Router) {
		// No session required
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/logs", s.handleLogs)
		r.Post("/login", s.handleLogin)
		r.Post("/verify-pin", s.handleVerifyPIN)
		r.Post("/logout", s.handleLogout)

		// WebSocket (auth via ticket, validated in handler)
		r.Get(wsPath, s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Get("/cameras", s.handleListCameras)
			r.Get("/events", s.handleListEvents)
			r.Get("/audit", s.handleListAuditLogs)
			r.Post("/ws-ticket", s.handleWSTicket)

			r.Route("/camera/{name}", func(r chi.Router) {
				r.Post("/arm", s.handleArm)
				r.Post("/disarm", s.handleDisarm)
				r.Post("/snapshot", s.handleSnapshot)
				r.Post("/motion", s.handleSetMotion)
				r.Post("/notifications", s.handleSetNotifications)
				r.Get("/thumbnail", s.handleThumbnail)
			})
		})
	})

	return r
}
