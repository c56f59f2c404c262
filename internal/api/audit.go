package api

import (
	"net/http"
	"strconv"

	"github.com/quarterline/avops-core/internal/audit"
)

// handleListAudit returns the command trail, newest first.
//
// Query parameters:
//   - test_type: filter by command kind (switch, sweep_summary, volume, ...)
//   - device_id: filter by device
//   - failures_only: "true" to return only unsuccessful commands
//   - limit, offset: pagination (limit defaults to 50, capped at 200)
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		TestType:     q.Get("test_type"),
		DeviceID:     q.Get("device_id"),
		FailuresOnly: q.Get("failures_only") == "true",
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.trail.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list command trail", "error", err)
		writeInternalError(w, "failed to list command trail")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
