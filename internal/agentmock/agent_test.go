package agentmock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/angel-control/angelmon/internal/clock"
	"github.com/angel-control/angelmon/internal/config"
	"github.com/angel-control/angelmon/internal/jobs"
	"github.com/angel-control/angelmon/internal/liveness"
	"github.com/angel-control/angelmon/internal/logging"
	"github.com/angel-control/angelmon/internal/logtail"
	"github.com/angel-control/angelmon/internal/metrics"
)

func newTestAgent(t *testing.T) (*Agent, *config.Config) {
	t.Helper()
	cfg := config.LoadBaseline()
	cfg.DataDir = t.TempDir()
	agent := New(cfg, logging.Discard())
	if err := agent.Prepare(); err != nil {
		t.Fatal(err)
	}
	return agent, cfg
}

func TestQueryReflectsProcesses(t *testing.T) {
	agent, cfg := newTestAgent(t)

	check := func(wantPrimary, wantWorker bool) {
		t.Helper()
		out, err := agent.Query().List(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		primary, worker := liveness.Match(out, cfg.Process.PrimarySignature, cfg.Process.WorkerSignature)
		if primary != wantPrimary || worker != wantWorker {
			t.Errorf("match = %v/%v, want %v/%v", primary, worker, wantPrimary, wantWorker)
		}
	}

	check(true, false)
	agent.SetProcesses(true, true)
	check(true, true)
	agent.SetProcesses(false, false)
	check(false, false)
}

func TestCommandEndpoint(t *testing.T) {
	agent, cfg := newTestAgent(t)
	srv := httptest.NewServer(agent.Handler())
	defer srv.Close()

	post := func(path string) int {
		t.Helper()
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(`{}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := post("/start"); got != http.StatusOK {
		t.Fatalf("start = %d", got)
	}
	out, _ := agent.Query().List(context.Background())
	if _, worker := liveness.Match(out, cfg.Process.PrimarySignature, cfg.Process.WorkerSignature); !worker {
		t.Error("worker not started")
	}

	agent.FailWith(http.StatusServiceUnavailable)
	if got := post("/stop"); got != http.StatusServiceUnavailable {
		t.Errorf("failing stop = %d", got)
	}
	agent.FailWith(0)

	agent.SetProcesses(false, false)
	if got := post("/start"); got != http.StatusConflict {
		t.Errorf("start without supervisor = %d", got)
	}

	if got := agent.Commands(); len(got) != 3 || got[0] != "start" || got[1] != "stop" {
		t.Errorf("commands = %v", got)
	}

	resp, err := http.Get(srv.URL + "/start")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /start = %d", resp.StatusCode)
	}
}

func TestWrittenFilesParse(t *testing.T) {
	agent, cfg := newTestAgent(t)

	if err := agent.WriteMetrics(metrics.Snapshot{SystemCPU: 42, WorkerRAMMB: 512}); err != nil {
		t.Fatal(err)
	}
	snap := metrics.NewReader(cfg.MetricsPath(), time.Minute, clock.Real()).Read()
	if snap == nil || snap.SystemCPU != 42 || snap.WorkerRAMMB != 512 || snap.Stale {
		t.Errorf("snapshot = %+v", snap)
	}

	if err := agent.WriteJobs(map[string]bool{"b": true, "a": false}); err != nil {
		t.Fatal(err)
	}
	list, err := jobs.Read(cfg.JobsPath(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[0].Active || !list[1].Active {
		t.Errorf("jobs = %+v", list)
	}

	if err := agent.AppendLog("angel", "INFO", "hello"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(cfg.StreamPaths()[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	entry, err := logtail.ParseLine("angel", data)
	if err != nil || entry.Message != "hello" || entry.Level != "INFO" {
		t.Errorf("entry = %+v, err = %v", entry, err)
	}

	if err := agent.TruncateLog("angel"); err != nil {
		t.Fatal(err)
	}
	if info, _ := os.Stat(cfg.StreamPaths()[0].Path); info.Size() != 0 {
		t.Errorf("size after truncate = %d", info.Size())
	}

	if err := agent.AppendLog("nope", "INFO", "x"); err == nil {
		t.Error("expected unknown stream error")
	}
}
