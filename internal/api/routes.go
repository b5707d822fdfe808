package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angel-control/angelmon/internal/auth"
	"github.com/angel-control/angelmon/internal/command"
	"github.com/angel-control/angelmon/internal/jobs"
	"github.com/angel-control/angelmon/internal/liveness"
	"github.com/angel-control/angelmon/internal/logtail"
	"github.com/angel-control/angelmon/internal/metrics"
	"github.com/angel-control/angelmon/internal/telemetry"
)

const apiV1 = "/api/v1"

// RegisterRoutes registers all v1 endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	m := s.authMiddleware

	// Health endpoint (no auth required)
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	mux.HandleFunc(apiV1+"/status", m.Protect(s.handleStatus, auth.ScopeRead))
	mux.HandleFunc(apiV1+"/status/refresh", m.Protect(s.handleRefresh, auth.ScopeRead))
	mux.HandleFunc(apiV1+"/logs", m.Protect(s.handleLogs, auth.ScopeRead))
	mux.HandleFunc(apiV1+"/metrics", m.Protect(s.handleMetrics, auth.ScopeRead))
	mux.HandleFunc(apiV1+"/telemetry", m.Protect(s.handleTelemetry, auth.ScopeTelemetry))
	mux.HandleFunc(apiV1+"/commands/start", m.Protect(s.handleCommand(command.ActionStart), auth.ScopeControl))
	mux.HandleFunc(apiV1+"/commands/stop", m.Protect(s.handleCommand(command.ActionStop), auth.ScopeControl))
}

type statusView struct {
	liveness.State
	Monitoring bool              `json:"monitoring"`
	Stats      *metrics.Snapshot `json:"stats"`
	Jobs       []jobs.Job        `json:"jobs"`
}

func (s *Server) statusView() statusView {
	return statusView{
		State:      s.telemetryHub.Status(),
		Monitoring: s.telemetryHub.Running(),
		Stats:      s.telemetryHub.LastStats(),
		Jobs:       s.telemetryHub.Jobs(),
	}
}

// handleStatus handles GET /status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireHub(w) {
		return
	}
	WriteSuccess(w, s.statusView())
}

// handleRefresh handles POST /status/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w, http.MethodPost)
		return
	}
	if !s.requireHub(w) {
		return
	}
	s.telemetryHub.ForceCheck()
	s.telemetryHub.ForceEmitStatus()
	WriteSuccess(w, s.statusView())
}

// handleLogs handles GET /logs?stream=<name>
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireHub(w) {
		return
	}

	streams := s.telemetryHub.Streams()
	if name := r.URL.Query().Get("stream"); name != "" {
		streams = []string{name}
	}

	logs := make(map[string][]logtail.Entry, len(streams))
	for _, name := range streams {
		entries, err := s.telemetryHub.Logs(name)
		if err != nil {
			writeErr(w, err, map[string]string{"stream": name})
			return
		}
		logs[name] = entries
	}
	WriteSuccess(w, map[string]interface{}{"streams": logs})
}

// handleMetrics handles GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireHub(w) {
		return
	}
	promhttp.HandlerFor(s.telemetryHub.Registry(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// handleTelemetry handles GET /telemetry (SSE)
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	if !s.requireHub(w) {
		return
	}

	if err := s.telemetryHub.ServeSSE(w, r); err != nil {
		if errors.Is(err, telemetry.ErrStreamingUnsupported) {
			WriteError(w, http.StatusInternalServerError, "INTERNAL",
				"Streaming is not supported", nil)
			return
		}
		s.logger.Debug("telemetry stream ended", "error", err)
	}
}

// handleCommand handles POST /commands/{start,stop}
func (s *Server) handleCommand(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		if s.commands == nil {
			WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
				"Command service not available", nil)
			return
		}

		s.logger.Info("command requested", "action", action, "user", auth.SubjectFromContext(r.Context()))

		var (
			result *command.Result
			err    error
		)
		if action == command.ActionStart {
			result, err = s.commands.Start(r.Context())
		} else {
			result, err = s.commands.Stop(r.Context())
		}
		if err != nil {
			var details interface{}
			if result != nil {
				details = result
			}
			writeErr(w, err, details)
			return
		}
		WriteSuccess(w, result)
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}

	subsystems := map[string]bool{
		"telemetry":  s.telemetryHub != nil,
		"monitoring": s.telemetryHub != nil && s.telemetryHub.Running(),
		"commands":   s.commands != nil,
		"auth":       s.authMiddleware.Enabled(),
	}

	status := "ok"
	if !subsystems["telemetry"] || !subsystems["monitoring"] || !subsystems["commands"] {
		status = "degraded"
	}

	health := map[string]interface{}{
		"status":     status,
		"uptimeSec":  time.Since(s.startTime).Seconds(),
		"version":    Version,
		"subsystems": subsystems,
	}

	if status == "ok" {
		WriteSuccess(w, health)
		return
	}
	WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
		"One or more subsystems are unavailable", health)
}

func (s *Server) requireHub(w http.ResponseWriter) bool {
	if s.telemetryHub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
			"Telemetry service not available", nil)
		return false
	}
	return true
}
