package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/quarterline/avops-core/internal/bridges/atlas"
	"github.com/quarterline/avops-core/internal/bridges/matrix"
)

func testZone() *atlas.Zone {
	idx := 0
	return &atlas.Zone{
		ID:         "zone-1",
		DeviceID:   "atlas-audio",
		Name:       "Main Bar",
		AtlasIndex: &idx,
		Volume:     42,
	}
}

func TestZoneCommandAppliesAction(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.audio.zone = testZone()

	rec := env.request(t, token, http.MethodPost, "/api/v1/zones/zone-1/command",
		`{"action":"volume","value":65}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if env.audio.lastAction.Action != atlas.ActionVolume {
		t.Errorf("action = %q, want volume", env.audio.lastAction.Action)
	}
	if env.audio.lastAction.Value != 65 {
		t.Errorf("value = %v, want 65", env.audio.lastAction.Value)
	}

	var zone atlas.Zone
	if err := json.Unmarshal(rec.Body.Bytes(), &zone); err != nil {
		t.Fatalf("decoding zone: %v", err)
	}
	if zone.ID != "zone-1" {
		t.Errorf("zone ID = %q, want zone-1", zone.ID)
	}
}

func TestZoneCommandValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.audio.zone = testZone()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown action", `{"action":"explode","value":1}`, http.StatusBadRequest},
		{"missing output index", `{"action":"output-volume","value":50}`, http.StatusBadRequest},
		{"malformed json", `{nope`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, token, http.MethodPost, "/api/v1/zones/zone-1/command", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestZoneCommandUnknownZone(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.audio.err = atlas.ErrUnknownZone

	rec := env.request(t, token, http.MethodPost, "/api/v1/zones/missing/command",
		`{"action":"mute","value":1}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestZoneCommandHardwareFailureReturnsRevertedState(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.audio.zone = testZone()
	env.audio.err = atlas.ErrCommandFailed

	rec := env.request(t, token, http.MethodPost, "/api/v1/zones/zone-1/command",
		`{"action":"volume","value":80}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}

	var body struct {
		Error string      `json:"error"`
		Zone  *atlas.Zone `json:"zone"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error == "" {
		t.Error("error message missing")
	}
	if body.Zone == nil || body.Zone.Volume != 42 {
		t.Errorf("zone = %+v, want reverted state at volume 42", body.Zone)
	}
}

func TestGetZone(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.audio.zone = testZone()

	rec := env.request(t, token, http.MethodGet, "/api/v1/zones/zone-1/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var zone atlas.Zone
	if err := json.Unmarshal(rec.Body.Bytes(), &zone); err != nil {
		t.Fatalf("decoding zone: %v", err)
	}
	if zone.Name != "Main Bar" {
		t.Errorf("name = %q, want Main Bar", zone.Name)
	}
}

func TestZonesUnavailableWhenAudioDisabled(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.server.audio = nil
	env.server.zones = nil

	rec := env.request(t, token, http.MethodGet, "/api/v1/zones/zone-1/", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSwitchRunsSingleRoute(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.switcher.result = matrix.PairResult{
		Input:   3,
		Output:  2,
		Command: "3X2.\r",
		Success: true,
	}

	rec := env.request(t, token, http.MethodPost, "/api/v1/switch/", `{"input":3,"output":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result matrix.PairResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if !result.Success || result.Command != "3X2.\r" {
		t.Errorf("result = %+v", result)
	}
}

func TestSwitchRejectsInvalidChannel(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.switcher.err = matrix.ErrInvalidChannel

	rec := env.request(t, token, http.MethodPost, "/api/v1/switch/", `{"input":0,"output":2}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSweepDefaultsToConfiguredChannels(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.switcher.report = &matrix.SweepReport{
		DeviceID: "matrix-main",
		Summary:  matrix.Summary{Total: 6, Succeeded: 6, SuccessRate: 100},
	}

	rec := env.request(t, token, http.MethodPost, "/api/v1/switch/sweep", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Test env configures inputs 1,2 and outputs 1,2,3
	if len(env.switcher.lastInputs) != 2 || len(env.switcher.lastOutputs) != 3 {
		t.Errorf("channels = %v x %v, want configured defaults",
			env.switcher.lastInputs, env.switcher.lastOutputs)
	}
}

func TestSweepExplicitChannelsOverrideConfig(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.switcher.report = &matrix.SweepReport{}

	rec := env.request(t, token, http.MethodPost, "/api/v1/switch/sweep",
		`{"inputs":[5],"outputs":[6,7]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if len(env.switcher.lastInputs) != 1 || env.switcher.lastInputs[0] != 5 {
		t.Errorf("inputs = %v, want [5]", env.switcher.lastInputs)
	}
	if len(env.switcher.lastOutputs) != 2 {
		t.Errorf("outputs = %v, want [6 7]", env.switcher.lastOutputs)
	}
}

func TestSwitchUnavailableWhenMatrixDisabled(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	env.server.switcher = nil

	rec := env.request(t, token, http.MethodPost, "/api/v1/switch/", `{"input":1,"output":1}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.request(t, token, http.MethodGet, "/api/v1/devices/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Count != 0 {
		t.Errorf("count = %d, want 0 for empty registry", body.Count)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.request(t, token, http.MethodGet, "/api/v1/devices/ghost/", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
