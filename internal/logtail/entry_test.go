package logtail

import (
	"errors"
	"testing"
)

func TestParseLine(t *testing.T) {
	line := []byte(`{"timestamp":"2026-01-02T03:04:05Z","level":"INFO","module":"core","function":"run","message":"started","pid":42}`)

	entry, err := ParseLine("angel", line)
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	if entry.Stream != "angel" || entry.Level != "INFO" || entry.Module != "core" ||
		entry.Function != "run" || entry.Message != "started" || entry.Timestamp != "2026-01-02T03:04:05Z" {
		t.Errorf("ParseLine() = %+v", entry)
	}
	if got := entry.Fields["pid"]; got == nil || got.(interface{ String() string }).String() != "42" {
		t.Errorf("Fields[pid] = %v, want 42", got)
	}
}

func TestParseLineErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"garbage", `not json`, ErrMalformed},
		{"truncated", `{"level":"INFO"`, ErrMalformed},
		{"array", `[1,2,3]`, ErrNotObject},
		{"string", `"hello"`, ErrNotObject},
		{"two objects", `{"a":1}{"b":2}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLine("s", []byte(tt.line))
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseLine(%q) error = %v, want %v", tt.line, err, tt.want)
			}
		})
	}
}

func TestParseLineNonStringFields(t *testing.T) {
	entry, err := ParseLine("s", []byte(`{"level":3,"message":null}`))
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	if entry.Level != "3" || entry.Message != "" {
		t.Errorf("ParseLine() = %+v", entry)
	}
}
