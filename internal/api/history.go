package api

import (
	"net/http"
	"strconv"
)

// handleStatusHistory returns formatted history rows, newest first.
// An optional ?limit=N caps the number of rows.
func (s *Server) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to fetch status history",
			"error", err,
			"request_id", r.Context().Value(ctxKeyRequestID),
		)
		writeInternalError(w, "Error fetching history")
		return
	}

	writeJSON(w, http.StatusOK, s.formatter.Format(records))
}
