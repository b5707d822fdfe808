package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Load merges LoadBaseline() + optional YAML file + ANGELMON_* env overrides.
// An empty path falls back to ANGELMON_CONFIG; a missing file at the default
// location is not an error.
func Load(path string) (*Config, error) {
	config := LoadBaseline()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("ANGELMON_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = "angelmon.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(config, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile overlays YAML values onto config. Keys absent from the file
// keep their current values.
func loadFromFile(config *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies ANGELMON_* environment variables to the config.
// Unparseable values are ignored.
func applyEnvOverrides(config *Config) {
	config.DataDir = GetEnvVar("ANGELMON_DATA_DIR", config.DataDir)
	config.LogDir = GetEnvVar("ANGELMON_LOG_DIR", config.LogDir)
	config.MetricsFile = GetEnvVar("ANGELMON_METRICS_FILE", config.MetricsFile)
	config.JobsFile = GetEnvVar("ANGELMON_JOBS_FILE", config.JobsFile)

	if val := os.Getenv("ANGELMON_STREAMS"); val != "" {
		if streams, err := parseStreams(val); err == nil {
			config.Streams = streams
		}
	}

	// Process signatures
	config.Process.PrimarySignature = GetEnvVar("ANGELMON_PRIMARY_SIGNATURE", config.Process.PrimarySignature)
	config.Process.WorkerSignature = GetEnvVar("ANGELMON_WORKER_SIGNATURE", config.Process.WorkerSignature)

	// Timing
	config.Timing.PollInterval = GetEnvDuration("ANGELMON_POLL_INTERVAL", config.Timing.PollInterval)
	config.Timing.QueryTimeout = GetEnvDuration("ANGELMON_QUERY_TIMEOUT", config.Timing.QueryTimeout)
	config.Timing.MetricsInterval = GetEnvDuration("ANGELMON_METRICS_INTERVAL", config.Timing.MetricsInterval)
	config.Timing.StaleAfter = GetEnvDuration("ANGELMON_STALE_AFTER", config.Timing.StaleAfter)
	config.Timing.WatchRetryInterval = GetEnvDuration("ANGELMON_WATCH_RETRY_INTERVAL", config.Timing.WatchRetryInterval)
	config.Timing.HeartbeatInterval = GetEnvDuration("ANGELMON_HEARTBEAT_INTERVAL", config.Timing.HeartbeatInterval)

	// Tail engine
	config.Tail.Debounce = GetEnvDuration("ANGELMON_DEBOUNCE", config.Tail.Debounce)
	config.Tail.FloodThreshold = int64(GetEnvInt("ANGELMON_FLOOD_THRESHOLD", int(config.Tail.FloodThreshold)))
	config.Tail.HistoryLines = GetEnvInt("ANGELMON_HISTORY_LINES", config.Tail.HistoryLines)
	config.Tail.BufferCapacity = GetEnvInt("ANGELMON_BUFFER_CAPACITY", config.Tail.BufferCapacity)

	// HTTP and command proxy
	config.HTTP.Addr = GetEnvVar("ANGELMON_ADDR", config.HTTP.Addr)
	config.Command.BaseURL = GetEnvVar("ANGELMON_COMMAND_URL", config.Command.BaseURL)
	config.Command.Timeout = GetEnvDuration("ANGELMON_COMMAND_TIMEOUT", config.Command.Timeout)

	// Auth
	config.Auth.Algorithm = GetEnvVar("ANGELMON_AUTH_ALGORITHM", config.Auth.Algorithm)
	config.Auth.Secret = GetEnvVar("ANGELMON_JWT_SECRET", config.Auth.Secret)
	config.Auth.PublicKeyFile = GetEnvVar("ANGELMON_JWT_PUBLIC_KEY_FILE", config.Auth.PublicKeyFile)

	// Logging
	config.Logging.Level = GetEnvVar("ANGELMON_LOG_LEVEL", config.Logging.Level)
	config.Logging.File = GetEnvVar("ANGELMON_LOG_FILE", config.Logging.File)
}

// parseStreams parses "name=file,name=file".
func parseStreams(val string) ([]StreamConfig, error) {
	var streams []StreamConfig
	for _, part := range strings.Split(val, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, file, ok := strings.Cut(part, "=")
		if !ok || name == "" || file == "" {
			return nil, fmt.Errorf("invalid stream entry %q, want name=file", part)
		}
		streams = append(streams, StreamConfig{Name: strings.TrimSpace(name), File: strings.TrimSpace(file)})
	}
	return streams, nil
}

// GetEnvVar returns the value of an environment variable with a default.
func GetEnvVar(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvDuration returns the value of an environment variable as a duration with a default.
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvInt returns the value of an environment variable as an int with a default.
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
