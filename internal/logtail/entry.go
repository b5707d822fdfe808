package logtail

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Entry is one structured log record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Module    string         `json:"module"`
	Function  string         `json:"function"`
	Message   string         `json:"message"`
	Stream    string         `json:"stream"`
	Fields    map[string]any `json:"fields,omitempty"`
}

var (
	// ErrMalformed is returned for lines that are not valid JSON.
	ErrMalformed = errors.New("logtail: malformed record")
	// ErrNotObject is returned for lines that are valid JSON but not an object.
	ErrNotObject = errors.New("logtail: record is not a JSON object")
)

var knownKeys = map[string]struct{}{
	"timestamp": {},
	"level":     {},
	"module":    {},
	"function":  {},
	"message":   {},
}

// ParseLine decodes one log line. Known keys populate the entry; any others
// are kept in Fields.
func ParseLine(stream string, line []byte) (Entry, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		if len(line) > 0 && json.Valid(line) {
			return Entry{}, ErrNotObject
		}
		return Entry{}, ErrMalformed
	}

	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.UseNumber()
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if decoder.More() {
		return Entry{}, fmt.Errorf("%w: trailing data", ErrMalformed)
	}

	entry := Entry{
		Timestamp: stringField(raw["timestamp"]),
		Level:     stringField(raw["level"]),
		Module:    stringField(raw["module"]),
		Function:  stringField(raw["function"]),
		Message:   stringField(raw["message"]),
		Stream:    stream,
	}
	for key, value := range raw {
		if _, ok := knownKeys[key]; ok {
			continue
		}
		if entry.Fields == nil {
			entry.Fields = make(map[string]any)
		}
		entry.Fields[key] = value
	}
	return entry, nil
}

func stringField(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}
