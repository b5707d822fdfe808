package command

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/angel-control/angelmon/internal/config"
)

// Actions accepted by the agent.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

// maxDetailBytes bounds how much of an agent response is kept as detail.
const maxDetailBytes = 4 << 10

// Result describes a completed command.
type Result struct {
	Action    string `json:"action"`
	Outcome   string `json:"outcome"`
	Code      string `json:"code"`
	Detail    string `json:"detail,omitempty"`
	LatencyMs int64  `json:"latencyMs"`
}

// Service proxies commands to the agent's HTTP control endpoint.
type Service struct {
	baseURL   string
	timeout   time.Duration
	client    *http.Client
	publisher Publisher
	audit     AuditLogger
	logger    *slog.Logger
}

var _ ServicePort = (*Service)(nil)

// NewService creates a command service. publisher may be nil.
func NewService(cfg config.CommandConfig, publisher Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		client:    &http.Client{},
		publisher: publisher,
		logger:    logger,
	}
}

// SetAuditLogger sets the audit logger.
func (s *Service) SetAuditLogger(audit AuditLogger) {
	s.audit = audit
}

// Start asks the agent to start.
func (s *Service) Start(ctx context.Context) (*Result, error) {
	return s.execute(ctx, ActionStart)
}

// Stop asks the agent to stop.
func (s *Service) Stop(ctx context.Context) (*Result, error) {
	return s.execute(ctx, ActionStop)
}

func (s *Service) execute(ctx context.Context, action string) (*Result, error) {
	start := time.Now()
	detail, err := s.post(ctx, action)
	latency := time.Since(start)

	result := &Result{
		Action:    action,
		Outcome:   "success",
		Code:      Code(err),
		Detail:    detail,
		LatencyMs: latency.Milliseconds(),
	}
	if err != nil {
		result.Outcome = "error"
		s.logger.Warn("command failed", "action", action, "code", result.Code, "error", err)
	} else {
		s.logger.Info("command sent", "action", action, "latencyMs", result.LatencyMs)
	}

	if s.audit != nil {
		if auditErr := s.audit.LogAction(ctx, action, result.Outcome, result.Code, latency, detail); auditErr != nil {
			s.logger.Error("audit write failed", "action", action, "error", auditErr)
		}
	}
	if s.publisher != nil {
		if pubErr := s.publisher.PublishPassthrough("command", result); pubErr != nil {
			s.logger.Debug("publish command result failed", "error", pubErr)
		}
		s.publisher.ForceCheck()
	}

	return result, err
}

// post sends one command and returns the agent's response detail.
func (s *Service) post(ctx context.Context, action string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"action": action})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/"+action, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err.Error(), fmt.Errorf("%w: %s %s: %v", errorForTransport(err), action, s.baseURL, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	detail := strings.TrimSpace(string(raw))
	if err := errorForStatus(resp.StatusCode); err != nil {
		return detail, fmt.Errorf("%w: agent returned %d", err, resp.StatusCode)
	}
	return detail, nil
}
