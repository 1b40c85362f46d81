package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultWSPath is used when websocket.path is unset.
const defaultWSPath = "/api/ws"

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/api/health", s.handleHealth)

	// Live state and commands
	r.Get("/api/fanData", s.handleGetFanData)
	r.Post("/api/fanData", s.handleSetMode)
	r.Post("/api/changeThreshold", s.handleChangeThreshold)
	r.Post("/api/toggleFan", s.handleToggleFan)

	// History
	r.Get("/api/statusHistory", s.handleStatusHistory)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = defaultWSPath
	}
	r.Get(wsPath, s.handleWebSocket)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	return r
}

// handleHealth returns the server health status.
// The status is "degraded" while the broker is unreachable.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	connected := s.mqtt != nil && s.mqtt.IsConnected()
	status := "ok"
	if !connected {
		status = "degraded"
	}

	body := map[string]any{
		"status":         status,
		"version":        s.version,
		"mqtt_connected": connected,
		"ws_clients":     s.hub.ClientCount(),
	}
	if s.writer != nil {
		body["history"] = s.writer.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}
