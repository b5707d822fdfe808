package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/angel-control/angelmon/internal/auth"
	"github.com/angel-control/angelmon/internal/config"
)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Code      string    `json:"code"`
	LatencyMs int64     `json:"latencyMs"`
	Detail    string    `json:"detail,omitempty"`
}

// Logger appends audit entries to a rotating file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *lumberjack.Logger
	now      func() time.Time
}

// NewLogger opens the audit log at path, rotating with the limits in rotation.
func NewLogger(path string, rotation config.LoggingConfig) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	return &Logger{
		filePath: path,
		file: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    rotation.MaxSizeMB,
			MaxBackups: rotation.MaxBackups,
			MaxAge:     rotation.MaxAgeDays,
		},
		now: time.Now,
	}, nil
}

// LogAction records one command. The user is taken from the request's auth
// claims.
func (l *Logger) LogAction(ctx context.Context, action, outcome, code string, latency time.Duration, detail string) error {
	entry := Entry{
		Timestamp: l.now().UTC(),
		User:      auth.SubjectFromContext(ctx),
		Action:    action,
		Outcome:   outcome,
		Code:      code,
		LatencyMs: latency.Milliseconds(),
		Detail:    detail,
	}
	return l.write(entry)
}

func (l *Logger) write(entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Rotate closes the current file and starts a new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	return l.file.Rotate()
}

// Path returns the active audit file path.
func (l *Logger) Path() string {
	return l.filePath
}

// Close closes the audit file. Later writes fail with os.ErrClosed.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
