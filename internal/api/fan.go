package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/fanbridge/internal/device"
)

// Response messages shown by the dashboard.
const (
	msgModeUpdated      = "Mode updated successfully"
	msgThresholdUpdated = "Threshold updated successfully"
	msgControlUpdated   = "Fan control updated successfully"

	msgInvalidMode      = "Invalid mode"
	msgInvalidThreshold = "Invalid threshold value"
	msgInvalidControl   = "Invalid control state"

	msgModeFailed      = "Failed to update mode"
	msgThresholdFailed = "Failed to update threshold"
	msgControlFailed   = "Failed to update fan control"
)

type setModeRequest struct {
	Mode string `json:"mode"`
}

type setModeResponse struct {
	Message string      `json:"message"`
	Mode    device.Mode `json:"mode"`
}

type changeThresholdRequest struct {
	// Threshold is a JSON number or a numeric string.
	Threshold any `json:"threshold"`
}

type changeThresholdResponse struct {
	Message   string  `json:"message"`
	Threshold float64 `json:"threshold"`
}

type toggleFanRequest struct {
	Control string `json:"control"`
}

type toggleFanResponse struct {
	Message string         `json:"message"`
	Control device.Control `json:"control"`
}

// handleGetFanData returns the current state snapshot.
func (s *Server) handleGetFanData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Snapshot())
}

// handleSetMode publishes a mode change.
func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, msgInvalidMode)
		return
	}

	mode, err := s.gateway.SetMode(r.Context(), req.Mode)
	if err != nil {
		s.writeCommandError(w, r, err, msgInvalidMode, msgModeFailed)
		return
	}

	writeJSON(w, http.StatusOK, setModeResponse{Message: msgModeUpdated, Mode: mode})
}

// handleChangeThreshold publishes a new temperature setpoint.
func (s *Server) handleChangeThreshold(w http.ResponseWriter, r *http.Request) {
	var req changeThresholdRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, msgInvalidThreshold)
		return
	}

	threshold, err := s.gateway.SetThreshold(r.Context(), req.Threshold)
	if err != nil {
		s.writeCommandError(w, r, err, msgInvalidThreshold, msgThresholdFailed)
		return
	}

	writeJSON(w, http.StatusOK, changeThresholdResponse{Message: msgThresholdUpdated, Threshold: threshold})
}

// handleToggleFan publishes an on/off command.
func (s *Server) handleToggleFan(w http.ResponseWriter, r *http.Request) {
	var req toggleFanRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(w, msgInvalidControl)
		return
	}

	control, err := s.gateway.SetControl(r.Context(), req.Control)
	if err != nil {
		s.writeCommandError(w, r, err, msgInvalidControl, msgControlFailed)
		return
	}

	writeJSON(w, http.StatusOK, toggleFanResponse{Message: msgControlUpdated, Control: control})
}

// writeCommandError maps gateway errors: validation → 400, anything else → 500.
func (s *Server) writeCommandError(w http.ResponseWriter, r *http.Request, err error, invalidMsg, failedMsg string) {
	if errors.Is(err, device.ErrValidation) {
		writeValidationError(w, invalidMsg)
		return
	}

	s.logger.Error("fan command failed",
		"path", r.URL.Path,
		"error", err,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	code := ErrCodeInternal
	if errors.Is(err, device.ErrPublish) {
		code = ErrCodePublish
	}
	writeError(w, http.StatusInternalServerError, code, failedMsg)
}

// decodeBody decodes a JSON request body. An empty body is an error.
func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
