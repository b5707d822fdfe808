package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angel-control/angelmon/internal/auth"
	"github.com/angel-control/angelmon/internal/command"
	"github.com/angel-control/angelmon/internal/config"
	"github.com/angel-control/angelmon/internal/jobs"
	"github.com/angel-control/angelmon/internal/liveness"
	"github.com/angel-control/angelmon/internal/logtail"
	"github.com/angel-control/angelmon/internal/metrics"
	"github.com/angel-control/angelmon/internal/telemetry"
)

type fakeHub struct {
	state      liveness.State
	running    bool
	stats      *metrics.Snapshot
	logs       map[string][]logtail.Entry
	streams    []string
	forced     int
	emitted    int
	registry   *prometheus.Registry
	noFlushErr bool
}

func newFakeHub() *fakeHub {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "angelmon_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()
	return &fakeHub{
		state:   liveness.State{PrimaryAlive: true, WorkerAlive: true, Status: liveness.Active},
		running: true,
		stats:   &metrics.Snapshot{SystemCPU: 12.5},
		streams: []string{"angel", "trinity"},
		logs: map[string][]logtail.Entry{
			"angel":   {{Stream: "angel", Message: "hello"}},
			"trinity": {},
		},
		registry: registry,
	}
}

func (f *fakeHub) ServeSSE(w http.ResponseWriter, r *http.Request) error {
	if f.noFlushErr {
		return telemetry.ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	return nil
}

func (f *fakeHub) Status() liveness.State { return f.state }

func (f *fakeHub) LastStats() *metrics.Snapshot { return f.stats }

func (f *fakeHub) Jobs() []jobs.Job {
	return []jobs.Job{{Name: "nightly", Enabled: true, Active: true}}
}

func (f *fakeHub) Streams() []string { return f.streams }

func (f *fakeHub) Running() bool { return f.running }

func (f *fakeHub) Registry() *prometheus.Registry { return f.registry }

func (f *fakeHub) ForceCheck() { f.forced++ }

func (f *fakeHub) ForceEmitStatus() { f.emitted++ }

func (f *fakeHub) Logs(stream string) ([]logtail.Entry, error) {
	entries, ok := f.logs[stream]
	if !ok {
		return nil, fmt.Errorf("%w: %s", logtail.ErrUnknownStream, stream)
	}
	return entries, nil
}

type fakeCommands struct {
	calls []string
	err   error
}

func (c *fakeCommands) Start(ctx context.Context) (*command.Result, error) {
	return c.run(command.ActionStart)
}

func (c *fakeCommands) Stop(ctx context.Context) (*command.Result, error) {
	return c.run(command.ActionStop)
}

func (c *fakeCommands) run(action string) (*command.Result, error) {
	c.calls = append(c.calls, action)
	result := &command.Result{Action: action, Outcome: "success", Code: command.Code(c.err)}
	if c.err != nil {
		result.Outcome = "error"
	}
	return result, c.err
}

func testHTTPConfig() config.HTTPConfig {
	return config.LoadBaseline().HTTP
}

func do(t *testing.T, h http.Handler, method, path string, header string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, resp
}

func TestHealth(t *testing.T) {
	hub := newFakeHub()
	srv := NewServer(hub, &fakeCommands{}, nil, testHTTPConfig(), nil)

	rec, resp := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || resp.Result != "ok" {
		t.Fatalf("health = %d %+v", rec.Code, resp)
	}
	if resp.CorrelationID == "" {
		t.Error("missing correlation id")
	}

	hub.running = false
	rec, resp = do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Code != "SERVICE_DEGRADED" {
		t.Fatalf("degraded health = %d %+v", rec.Code, resp)
	}
	details, _ := resp.Details.(map[string]interface{})
	if details["status"] != "degraded" {
		t.Errorf("details = %v", resp.Details)
	}
}

func TestHealthWithoutHub(t *testing.T) {
	srv := NewServer(nil, nil, nil, testHTTPConfig(), nil)
	rec, _ := do(t, srv.Handler(), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	rec, resp := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Code != "UNAVAILABLE" {
		t.Fatalf("status route = %d %+v", rec.Code, resp)
	}
}

func TestStatus(t *testing.T) {
	srv := NewServer(newFakeHub(), &fakeCommands{}, nil, testHTTPConfig(), nil)

	rec, _ := do(t, srv.Handler(), http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data struct {
			Status       string            `json:"status"`
			PrimaryAlive bool              `json:"primaryAlive"`
			Monitoring   bool              `json:"monitoring"`
			Stats        *metrics.Snapshot `json:"stats"`
			Jobs         []jobs.Job        `json:"jobs"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Data.Status != "ACTIVE" || !body.Data.PrimaryAlive || !body.Data.Monitoring {
		t.Errorf("data = %+v", body.Data)
	}
	if body.Data.Stats == nil || len(body.Data.Jobs) != 1 {
		t.Errorf("stats/jobs missing: %+v", body.Data)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(newFakeHub(), &fakeCommands{}, nil, testHTTPConfig(), nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/health"},
		{http.MethodPost, "/api/v1/status"},
		{http.MethodGet, "/api/v1/status/refresh"},
		{http.MethodDelete, "/api/v1/logs"},
		{http.MethodGet, "/api/v1/commands/start"},
		{http.MethodPut, "/api/v1/commands/stop"},
	}
	for _, tt := range tests {
		rec, resp := do(t, srv.Handler(), tt.method, tt.path, "")
		if rec.Code != http.StatusMethodNotAllowed || resp.Code != "METHOD_NOT_ALLOWED" {
			t.Errorf("%s %s = %d %q", tt.method, tt.path, rec.Code, resp.Code)
		}
	}
}

func TestRefresh(t *testing.T) {
	hub := newFakeHub()
	srv := NewServer(hub, &fakeCommands{}, nil, testHTTPConfig(), nil)

	rec, _ := do(t, srv.Handler(), http.MethodPost, "/api/v1/status/refresh", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if hub.forced != 1 || hub.emitted != 1 {
		t.Errorf("forced=%d emitted=%d, want 1 and 1", hub.forced, hub.emitted)
	}
}

func TestLogs(t *testing.T) {
	srv := NewServer(newFakeHub(), &fakeCommands{}, nil, testHTTPConfig(), nil)

	rec, _ := do(t, srv.Handler(), http.MethodGet, "/api/v1/logs", "")
	var all struct {
		Data struct {
			Streams map[string][]logtail.Entry `json:"streams"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all.Data.Streams) != 2 || len(all.Data.Streams["angel"]) != 1 {
		t.Errorf("streams = %+v", all.Data.Streams)
	}

	rec, _ = do(t, srv.Handler(), http.MethodGet, "/api/v1/logs?stream=trinity", "")
	var one struct {
		Data struct {
			Streams map[string][]logtail.Entry `json:"streams"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &one); err != nil {
		t.Fatal(err)
	}
	if _, ok := one.Data.Streams["trinity"]; !ok || len(one.Data.Streams) != 1 {
		t.Errorf("single stream = %+v", one.Data.Streams)
	}

	rec, resp := do(t, srv.Handler(), http.MethodGet, "/api/v1/logs?stream=nope", "")
	if rec.Code != http.StatusNotFound || resp.Code != "NOT_FOUND" {
		t.Errorf("unknown stream = %d %+v", rec.Code, resp)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"start ok", "/api/v1/commands/start", nil, http.StatusOK, ""},
		{"stop ok", "/api/v1/commands/stop", nil, http.StatusOK, ""},
		{"unavailable", "/api/v1/commands/start", command.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"timeout", "/api/v1/commands/stop", command.ErrTimeout, http.StatusGatewayTimeout, "TIMEOUT"},
		{"rejected", "/api/v1/commands/start", fmt.Errorf("%w: agent returned 409", command.ErrRejected), http.StatusConflict, "REJECTED"},
		{"internal", "/api/v1/commands/start", command.ErrInternal, http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := &fakeCommands{err: tt.err}
			srv := NewServer(newFakeHub(), cmds, nil, testHTTPConfig(), nil)

			rec, resp := do(t, srv.Handler(), http.MethodPost, tt.path, "")
			if rec.Code != tt.wantStatus || resp.Code != tt.wantCode {
				t.Fatalf("got %d %q, want %d %q", rec.Code, resp.Code, tt.wantStatus, tt.wantCode)
			}
			if len(cmds.calls) != 1 || !strings.HasSuffix(tt.path, cmds.calls[0]) {
				t.Errorf("calls = %v", cmds.calls)
			}
		})
	}
}

func TestCommandsUnavailableWithoutService(t *testing.T) {
	srv := NewServer(newFakeHub(), nil, nil, testHTTPConfig(), nil)
	rec, resp := do(t, srv.Handler(), http.MethodPost, "/api/v1/commands/start", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Code != "UNAVAILABLE" {
		t.Fatalf("got %d %+v", rec.Code, resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := NewServer(newFakeHub(), &fakeCommands{}, nil, testHTTPConfig(), nil)
	rec, _ := do(t, srv.Handler(), http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "angelmon_test_total 1") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestTelemetry(t *testing.T) {
	hub := newFakeHub()
	srv := NewServer(hub, &fakeCommands{}, nil, testHTTPConfig(), nil)

	rec, _ := do(t, srv.Handler(), http.MethodGet, "/api/v1/telemetry", "")
	if !strings.Contains(rec.Body.String(), "event: ready") {
		t.Errorf("body = %q", rec.Body.String())
	}

	hub.noFlushErr = true
	rec, resp := do(t, srv.Handler(), http.MethodGet, "/api/v1/telemetry", "")
	if rec.Code != http.StatusInternalServerError || resp.Code != "INTERNAL" {
		t.Errorf("unsupported streaming = %d %+v", rec.Code, resp)
	}
}

func TestScopes(t *testing.T) {
	secret := "test-secret"
	verifier, err := auth.NewVerifier(auth.VerifierConfig{Algorithm: "HS256", SecretKey: secret})
	if err != nil {
		t.Fatal(err)
	}
	srv := NewServer(newFakeHub(), &fakeCommands{}, auth.NewMiddleware(verifier), testHTTPConfig(), nil)

	sign := func(scopes ...string) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":    "viewer-1",
			"roles":  []string{auth.RoleViewer},
			"scopes": scopes,
			"exp":    time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + signed
	}
	viewer := sign(auth.ScopeRead, auth.ScopeTelemetry)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{"health open", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"status no token", http.MethodGet, "/api/v1/status", "", http.StatusUnauthorized},
		{"status viewer", http.MethodGet, "/api/v1/status", viewer, http.StatusOK},
		{"command viewer", http.MethodPost, "/api/v1/commands/start", viewer, http.StatusForbidden},
		{"command controller", http.MethodPost, "/api/v1/commands/start", sign(auth.ScopeControl), http.StatusOK},
		{"telemetry read only", http.MethodGet, "/api/v1/telemetry", sign(auth.ScopeRead), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := do(t, srv.Handler(), tt.method, tt.path, tt.header)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestUnencodableDataIsInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]interface{}{"bad": make(chan int)})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Error("partial JSON content type on encode failure")
	}
}
