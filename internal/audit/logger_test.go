package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/angel-control/angelmon/internal/auth"
	"github.com/angel-control/angelmon/internal/config"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	logger, err := NewLogger(path, config.LoggingConfig{MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { _ = logger.Close() })
	return logger
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestLogAction(t *testing.T) {
	logger := newTestLogger(t)
	ctx := auth.WithClaims(context.Background(), &auth.Claims{Subject: "admin-456"})

	if err := logger.LogAction(ctx, "start", "success", "SUCCESS", 120*time.Millisecond, ""); err != nil {
		t.Fatalf("LogAction() error = %v", err)
	}
	if err := logger.LogAction(context.Background(), "stop", "error", "UNAVAILABLE", 3*time.Second, "connection refused"); err != nil {
		t.Fatalf("LogAction() error = %v", err)
	}

	entries := readEntries(t, logger.Path())
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	first := entries[0]
	if first.User != "admin-456" || first.Action != "start" || first.Code != "SUCCESS" || first.LatencyMs != 120 {
		t.Errorf("first entry = %+v", first)
	}
	if !first.Timestamp.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("timestamp = %v", first.Timestamp)
	}
	second := entries[1]
	if second.User != "unknown" || second.Detail != "connection refused" || second.LatencyMs != 3000 {
		t.Errorf("second entry = %+v", second)
	}
}

func TestWriteAfterClose(t *testing.T) {
	logger := newTestLogger(t)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	err := logger.LogAction(context.Background(), "start", "success", "SUCCESS", 0, "")
	if !errors.Is(err, os.ErrClosed) {
		t.Errorf("LogAction() after Close error = %v, want os.ErrClosed", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestRotate(t *testing.T) {
	logger := newTestLogger(t)
	logger.LogAction(context.Background(), "start", "success", "SUCCESS", 0, "")
	if err := logger.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	logger.LogAction(context.Background(), "stop", "success", "SUCCESS", 0, "")

	entries := readEntries(t, logger.Path())
	if len(entries) != 1 || entries[0].Action != "stop" {
		t.Errorf("active file entries = %+v, want only the post-rotation entry", entries)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(logger.Path()), "audit-*.jsonl"))
	if len(matches) != 1 {
		t.Errorf("rotated backups = %v, want 1", matches)
	}
}
