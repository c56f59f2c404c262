package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quarterline/avops-core/internal/audit"
	"github.com/quarterline/avops-core/internal/bridges/atlas"
	"github.com/quarterline/avops-core/internal/bridges/matrix"
	"github.com/quarterline/avops-core/internal/device"
	"github.com/quarterline/avops-core/internal/infrastructure/config"
	"github.com/quarterline/avops-core/internal/infrastructure/logging"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// fakeTrail is an in-memory audit repository.
type fakeTrail struct {
	records    []audit.Record
	lastFilter audit.Filter
}

func (f *fakeTrail) Create(_ context.Context, rec *audit.Record) error {
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeTrail) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.lastFilter = filter
	return &audit.ListResult{
		Records: f.records,
		Total:   len(f.records),
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// fakeAudio scripts zone controller responses.
type fakeAudio struct {
	zone       *atlas.Zone
	err        error
	lastAction atlas.ZoneAction
}

func (f *fakeAudio) GetZone(_ context.Context, _ string) (*atlas.Zone, error) {
	return f.zone, f.err
}

func (f *fakeAudio) Apply(_ context.Context, _ string, action atlas.ZoneAction) (*atlas.Zone, error) {
	f.lastAction = action
	return f.zone, f.err
}

func (f *fakeAudio) ReloadZone(_ context.Context, _ string) (*atlas.Zone, error) {
	return f.zone, f.err
}

// fakeSwitcher scripts matrix orchestrator responses.
type fakeSwitcher struct {
	report      *matrix.SweepReport
	result      matrix.PairResult
	err         error
	lastInputs  []int
	lastOutputs []int
}

func (f *fakeSwitcher) RunFullSweep(_ context.Context, inputs, outputs []int) (*matrix.SweepReport, error) {
	f.lastInputs = inputs
	f.lastOutputs = outputs
	return f.report, f.err
}

func (f *fakeSwitcher) RunSingleSwitch(_ context.Context, _, _ int) (matrix.PairResult, error) {
	return f.result, f.err
}

// memDeviceRepo is an in-memory device repository for registry construction.
type memDeviceRepo struct {
	devices map[string]*device.Device
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[string]*device.Device)}
}

func (m *memDeviceRepo) GetByID(_ context.Context, id string) (*device.Device, error) {
	dev, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return dev.Clone(), nil
}

func (m *memDeviceRepo) List(_ context.Context) ([]device.Device, error) {
	out := make([]device.Device, 0, len(m.devices))
	for _, dev := range m.devices {
		out = append(out, *dev.Clone())
	}
	return out, nil
}

func (m *memDeviceRepo) ListByFamily(_ context.Context, family device.Family) ([]device.Device, error) {
	var out []device.Device
	for _, dev := range m.devices {
		if dev.Family == family {
			out = append(out, *dev.Clone())
		}
	}
	return out, nil
}

func (m *memDeviceRepo) Upsert(_ context.Context, dev *device.Device) error {
	m.devices[dev.ID] = dev.Clone()
	return nil
}

func (m *memDeviceRepo) Delete(_ context.Context, id string) error {
	delete(m.devices, id)
	return nil
}

type testEnv struct {
	server   *Server
	handler  http.Handler
	trail    *fakeTrail
	audio    *fakeAudio
	switcher *fakeSwitcher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := device.NewRegistry(newMemDeviceRepo())

	trail := &fakeTrail{}
	audio := &fakeAudio{}
	switcher := &fakeSwitcher{}

	s, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 8080},
		WS:     config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{
			JWT:      config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
			Operator: config.OperatorConfig{Username: "operator", Password: "hunter22"},
		},
		Matrix: config.MatrixConfig{
			Inputs:  []int{1, 2},
			Outputs: []int{1, 2, 3},
		},
		Logger:   logging.Default(),
		Devices:  registry,
		Audit:    trail,
		Switcher: switcher,
		Audio:    audio,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{
		server:   s,
		handler:  s.buildRouter(),
		trail:    trail,
		audio:    audio,
		switcher: switcher,
	}
}

// login performs a real login and returns the issued bearer token.
func (e *testEnv) login(t *testing.T) string {
	t.Helper()

	body := `{"username":"operator","password":"hunter22"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}
	return resp.AccessToken
}

// request performs an authenticated request against the test router.
func (e *testEnv) request(t *testing.T, token, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "", http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version field = %v, want test", body["version"])
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"username":"operator","password":"wrong"}`},
		{"wrong username", `{"username":"admin","password":"hunter22"}`},
		{"empty", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.request(t, "", http.MethodPost, "/api/v1/auth/login", tt.body)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestLoginMalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "", http.MethodPost, "/api/v1/auth/login", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	paths := []string{"/api/v1/devices/", "/api/v1/zones/", "/api/v1/audit"}
	for _, path := range paths {
		rec := env.request(t, "", http.MethodGet, path, "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without token: status = %d, want 401", path, rec.Code)
		}
	}

	rec := env.request(t, "not-a-jwt", http.MethodGet, "/api/v1/audit", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", rec.Code)
	}
}

func TestIssuedTokenGrantsAccess(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.request(t, token, http.MethodGet, "/api/v1/audit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestTokenSignedWithWrongSecretRejected(t *testing.T) {
	env := newTestEnv(t)

	// A token issued by a server with a different secret must not validate.
	otherRegistry := device.NewRegistry(newMemDeviceRepo())
	other, err := New(Deps{
		Config: config.APIConfig{},
		Security: config.SecurityConfig{
			JWT:      config.JWTConfig{Secret: "another-secret-another-secret-00", AccessTokenTTL: 15},
			Operator: config.OperatorConfig{Username: "operator", Password: "hunter22"},
		},
		Logger:  logging.Default(),
		Devices: otherRegistry,
		Audit:   &fakeTrail{},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	otherEnv := &testEnv{server: other, handler: other.buildRouter()}
	foreignToken := otherEnv.login(t)

	rec := env.request(t, foreignToken, http.MethodGet, "/api/v1/audit", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestListAuditPassesFilters(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.request(t, token, http.MethodGet,
		"/api/v1/audit?test_type=switch&device_id=matrix-main&failures_only=true&limit=10&offset=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	f := env.trail.lastFilter
	if f.TestType != "switch" || f.DeviceID != "matrix-main" || !f.FailuresOnly {
		t.Errorf("filter = %+v, want switch/matrix-main/failures", f)
	}
	if f.Limit != 10 || f.Offset != 5 {
		t.Errorf("pagination = %d/%d, want 10/5", f.Limit, f.Offset)
	}
}

func TestListAuditRejectsBadPagination(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	for _, query := range []string{"limit=abc", "limit=-1", "offset=xyz"} {
		rec := env.request(t, token, http.MethodGet, "/api/v1/audit?"+query, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("query %q: status = %d, want 400", query, rec.Code)
		}
	}
}

func TestTicketIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	rec := env.request(t, token, http.MethodPost, "/api/v1/auth/ws-ticket", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	ticket, _ := body["ticket"].(string) //nolint:errcheck // validated below
	if ticket == "" {
		t.Fatal("ticket missing from response")
	}

	if !env.server.validateTicket(ticket) {
		t.Error("first validation should succeed")
	}
	if env.server.validateTicket(ticket) {
		t.Error("second validation should fail, tickets are single-use")
	}
	if env.server.validateTicket("nonexistent") {
		t.Error("unknown ticket should fail")
	}
}

func TestMetricsIsPublic(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "", http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var metrics SystemMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	if metrics.Version != "test" {
		t.Errorf("version = %q, want test", metrics.Version)
	}
	if metrics.Runtime.Goroutines == 0 {
		t.Error("goroutine count should be non-zero")
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, "", http.MethodGet, "/api/v1/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry X-Request-ID")
	}

	// Inbound IDs are preserved
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "upstream-id" {
		t.Errorf("X-Request-ID = %q, want upstream-id", got)
	}
}
