package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quarterline/avops-core/internal/bridges/atlas"
)

// handleListZones returns all audio zones, optionally filtered by device.
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	if s.zones == nil {
		writeUnavailable(w, "audio control is not enabled")
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	zones, err := s.zones.ListZones(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("failed to list zones", "error", err)
		writeInternalError(w, "failed to list zones")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"zones": zones,
		"count": len(zones),
	})
}

// handleGetZone returns a single zone's cached state.
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		writeUnavailable(w, "audio control is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	zone, err := s.audio.GetZone(r.Context(), id)
	if err != nil {
		if errors.Is(err, atlas.ErrUnknownZone) {
			writeNotFound(w, "zone not found: "+id)
			return
		}
		s.logger.Error("failed to load zone", "zone_id", id, "error", err)
		writeInternalError(w, "failed to load zone")
		return
	}

	writeJSON(w, http.StatusOK, zone)
}

// handleZoneCommand applies a volume, mute, or output-volume action to a zone.
// The response carries the zone state after the command, which on failure is
// the state reloaded from hardware.
func (s *Server) handleZoneCommand(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		writeUnavailable(w, "audio control is not enabled")
		return
	}

	id := chi.URLParam(r, "id")

	var action atlas.ZoneAction
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := action.Validate(); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	zone, err := s.audio.Apply(r.Context(), id, action)
	switch {
	case err == nil:
		s.broadcastZoneState(zone)
		writeJSON(w, http.StatusOK, zone)
	case errors.Is(err, atlas.ErrUnknownZone):
		writeNotFound(w, "zone not found: "+id)
	case errors.Is(err, atlas.ErrUnknownOutput):
		writeBadRequest(w, err.Error())
	case errors.Is(err, atlas.ErrCommandFailed), errors.Is(err, atlas.ErrBatchReverted):
		// The zone in hand reflects hardware state after the revert
		if zone != nil {
			s.broadcastZoneState(zone)
		}
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
			"zone":  zone,
		})
	default:
		s.logger.Error("zone command failed", "zone_id", id, "error", err)
		writeInternalError(w, "zone command failed")
	}
}

// handleReloadZone queries the hardware and refreshes the cached zone state.
func (s *Server) handleReloadZone(w http.ResponseWriter, r *http.Request) {
	if s.audio == nil {
		writeUnavailable(w, "audio control is not enabled")
		return
	}

	id := chi.URLParam(r, "id")
	zone, err := s.audio.ReloadZone(r.Context(), id)
	if err != nil {
		if errors.Is(err, atlas.ErrUnknownZone) {
			writeNotFound(w, "zone not found: "+id)
			return
		}
		s.logger.Error("zone reload failed", "zone_id", id, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
		})
		return
	}

	s.broadcastZoneState(zone)
	writeJSON(w, http.StatusOK, zone)
}

// broadcastZoneState pushes a zone snapshot to WebSocket subscribers.
func (s *Server) broadcastZoneState(zone *atlas.Zone) {
	if s.hub == nil || zone == nil {
		return
	}
	s.hub.Broadcast(wsChannelZoneState, zone)
}
