package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quarterline/avops-core/internal/bridges/matrix"
)

// switchRequest is the request body for POST /switch.
type switchRequest struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// sweepRequest is the request body for POST /switch/sweep. Empty channel
// lists fall back to the configured active channels.
type sweepRequest struct {
	Inputs  []int `json:"inputs,omitempty"`
	Outputs []int `json:"outputs,omitempty"`
}

// handleSwitch routes a single input to a single output.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	if s.switcher == nil {
		writeUnavailable(w, "matrix control is not enabled")
		return
	}

	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	result, err := s.switcher.RunSingleSwitch(r.Context(), req.Input, req.Output)
	if err != nil {
		if errors.Is(err, matrix.ErrInvalidChannel) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("switch command failed", "input", req.Input, "output", req.Output, "error", err)
		writeInternalError(w, "switch command failed")
		return
	}

	s.broadcastSwitchResult(result)
	writeJSON(w, http.StatusOK, result)
}

// handleRunSweep runs a full verification sweep over the matrix. The sweep
// runs synchronously; with default pacing an 8x8 matrix completes in a few
// seconds, well inside the write timeout.
func (s *Server) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	if s.switcher == nil {
		writeUnavailable(w, "matrix control is not enabled")
		return
	}

	var req sweepRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	inputs := req.Inputs
	if len(inputs) == 0 {
		inputs = s.matrixCfg.Inputs
	}
	outputs := req.Outputs
	if len(outputs) == 0 {
		outputs = s.matrixCfg.Outputs
	}

	report, err := s.switcher.RunFullSweep(r.Context(), inputs, outputs)
	if err != nil {
		switch {
		case errors.Is(err, matrix.ErrNoActiveChannels), errors.Is(err, matrix.ErrInvalidChannel):
			writeBadRequest(w, err.Error())
		case report != nil:
			// Cancelled mid-sweep; return the partial report
			s.broadcastSweepReport(report)
			writeJSON(w, http.StatusOK, report)
		default:
			s.logger.Error("switch sweep failed", "error", err)
			writeInternalError(w, "switch sweep failed")
		}
		return
	}

	s.broadcastSweepReport(report)
	writeJSON(w, http.StatusOK, report)
}

// broadcastSwitchResult pushes a single switch outcome to WebSocket subscribers.
func (s *Server) broadcastSwitchResult(result matrix.PairResult) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(wsChannelCommand, result)
}

// broadcastSweepReport pushes a completed sweep report to WebSocket subscribers.
func (s *Server) broadcastSweepReport(report *matrix.SweepReport) {
	if s.hub == nil || report == nil {
		return
	}
	s.hub.Broadcast(wsChannelSweep, report)
}
