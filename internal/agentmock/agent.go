// Package agentmock simulates the supervised agent for tests and local runs.
//
// An Agent serves the start/stop control endpoint the command service talks
// to, writes the files the monitor tails (metrics record, log streams, job
// config) and reports a process table for the liveness poller.
package agentmock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/angel-control/angelmon/internal/config"
	"github.com/angel-control/angelmon/internal/liveness"
	"github.com/angel-control/angelmon/internal/metrics"
)

// Agent is a thread-safe fake of the supervised agent.
type Agent struct {
	cfg    *config.Config
	logger *slog.Logger

	mu         sync.RWMutex
	primary    bool
	worker     bool
	failStatus int
	delay      time.Duration
	commands   []string
}

// New creates an agent whose files live under cfg's paths. The primary
// process starts alive and the worker stopped.
func New(cfg *config.Config, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{cfg: cfg, logger: logger, primary: true}
}

// Prepare creates the data and log directories.
func (a *Agent) Prepare() error {
	for _, dir := range []string{a.cfg.DataDir, a.cfg.LogDirPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// SetProcesses sets which simulated processes are alive.
func (a *Agent) SetProcesses(primary, worker bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.primary, a.worker = primary, worker
}

// FailWith makes every subsequent command answer with status. Zero clears it.
func (a *Agent) FailWith(status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failStatus = status
}

// SetDelay delays every command response by d.
func (a *Agent) SetDelay(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delay = d
}

// Commands returns the actions received so far.
func (a *Agent) Commands() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.commands...)
}

// Query returns a process query reporting the simulated process table.
func (a *Agent) Query() liveness.Query {
	return liveness.QueryFunc(func(ctx context.Context) (string, error) {
		a.mu.RLock()
		defer a.mu.RUnlock()
		lines := []string{"/sbin/init", "sshd: /usr/sbin/sshd -D"}
		if a.primary {
			lines = append(lines, "python3 -m "+a.cfg.Process.PrimarySignature)
		}
		if a.worker {
			lines = append(lines, "python3 -m "+a.cfg.Process.WorkerSignature+" --queue default")
		}
		return strings.Join(lines, "\n") + "\n", nil
	})
}

// Handler serves POST /start and POST /stop.
func (a *Agent) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", a.handleCommand("start"))
	mux.HandleFunc("/stop", a.handleCommand("stop"))
	return mux
}

type commandResponse struct {
	Action string `json:"action"`
	Worker bool   `json:"worker"`
	Error  string `json:"error,omitempty"`
}

func (a *Agent) handleCommand(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		a.mu.Lock()
		a.commands = append(a.commands, action)
		delay, failStatus := a.delay, a.failStatus
		a.mu.Unlock()

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}

		if failStatus != 0 {
			writeJSON(w, failStatus, commandResponse{Action: action, Error: http.StatusText(failStatus)})
			return
		}

		a.mu.Lock()
		if !a.primary {
			a.mu.Unlock()
			writeJSON(w, http.StatusConflict, commandResponse{Action: action, Error: "supervisor not running"})
			return
		}
		a.worker = action == "start"
		worker := a.worker
		a.mu.Unlock()

		a.logger.Info("agent command", "action", action)
		if len(a.cfg.Streams) > 0 {
			if err := a.AppendLog(a.cfg.Streams[0].Name, "INFO", "worker "+action+" requested"); err != nil {
				a.logger.Warn("append log failed", "error", err)
			}
		}
		writeJSON(w, http.StatusOK, commandResponse{Action: action, Worker: worker})
	}
}

// WriteMetrics replaces the metrics record. A zero CapturedAt is stamped
// with the current time.
func (a *Agent) WriteMetrics(s metrics.Snapshot) error {
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Now()
	}
	return os.WriteFile(a.cfg.MetricsPath(), metrics.Encode(s), 0o644)
}

// AppendLog appends one JSON record to the named stream.
func (a *Agent) AppendLog(stream, level, message string) error {
	path, err := a.streamPath(stream)
	if err != nil {
		return err
	}
	line, err := json.Marshal(map[string]string{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"module":    "agentmock",
		"function":  "AppendLog",
		"message":   message,
	})
	if err != nil {
		return err
	}
	return appendFile(path, append(line, '\n'))
}

// AppendRaw appends data verbatim to the named stream.
func (a *Agent) AppendRaw(stream string, data []byte) error {
	path, err := a.streamPath(stream)
	if err != nil {
		return err
	}
	return appendFile(path, data)
}

// TruncateLog empties the named stream, as log rotation does.
func (a *Agent) TruncateLog(stream string) error {
	path, err := a.streamPath(stream)
	if err != nil {
		return err
	}
	return os.Truncate(path, 0)
}

// WriteJobs replaces the job config with the given enabled flags.
func (a *Agent) WriteJobs(enabled map[string]bool) error {
	doc := make(map[string]map[string]bool, len(enabled))
	for name, on := range enabled {
		doc[name] = map[string]bool{"enabled": on}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(a.cfg.JobsPath(), data, 0o644)
}

func (a *Agent) streamPath(stream string) (string, error) {
	for _, s := range a.cfg.StreamPaths() {
		if s.Name == stream {
			return s.Path, nil
		}
	}
	return "", fmt.Errorf("agentmock: unknown stream %q", stream)
}

func appendFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
