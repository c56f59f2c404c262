package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quarterline/avops-core/internal/audit"
)

// deviceResponse wraps a device with its live connection state, when a
// control connection exists for it.
type deviceResponse struct {
	Device any    `json:"device"`
	State  string `json:"state,omitempty"`
}

// probeResponse is the result of a reachability probe.
type probeResponse struct {
	DeviceID   string `json:"device_id"`
	Reachable  bool   `json:"reachable"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// handleListDevices returns all configured devices.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.devices.List()

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleGetDevice returns a single device with its connection state.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, err := s.devices.Get(id)
	if err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	resp := deviceResponse{Device: dev}
	if s.conns != nil {
		if conn, connErr := s.conns.Get(id); connErr == nil {
			resp.State = conn.State().String()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleProbeDevice opens a connection to the device to verify it is
// reachable. The result is written to the command trail.
func (s *Server) handleProbeDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.devices.Get(id); err != nil {
		writeNotFound(w, "device not found: "+id)
		return
	}

	if s.conns == nil {
		writeUnavailable(w, "no control connections are configured")
		return
	}
	conn, err := s.conns.Get(id)
	if err != nil {
		writeUnavailable(w, "no control connection for device: "+id)
		return
	}

	start := time.Now()
	probeErr := conn.Probe(r.Context())
	duration := time.Since(start)

	resp := probeResponse{
		DeviceID:   id,
		Reachable:  probeErr == nil,
		DurationMs: duration.Milliseconds(),
	}
	if probeErr != nil {
		resp.Error = probeErr.Error()
	}

	rec := &audit.Record{
		ID:         uuid.NewString(),
		TestType:   "probe",
		DeviceID:   id,
		Command:    "probe " + conn.Endpoint().Addr(),
		Success:    probeErr == nil,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if probeErr != nil {
		rec.ErrorMessage = probeErr.Error()
	}
	if err := s.trail.Create(r.Context(), rec); err != nil {
		s.logger.Warn("failed to record probe result", "device_id", id, "error", err)
	}

	writeJSON(w, http.StatusOK, resp)
}
