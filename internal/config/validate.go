package config

import (
	"fmt"
	"strings"
)

// Validate enforces the monitor's configuration rules.
func Validate(config *Config) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validateStreams(config); err != nil {
		return fmt.Errorf("stream validation failed: %w", err)
	}

	if err := validateProcess(config); err != nil {
		return fmt.Errorf("process validation failed: %w", err)
	}

	if err := validateTiming(config); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	if err := validateTail(config); err != nil {
		return fmt.Errorf("tail validation failed: %w", err)
	}

	if err := validateAuth(config); err != nil {
		return fmt.Errorf("auth validation failed: %w", err)
	}

	if err := validateLogging(config); err != nil {
		return fmt.Errorf("logging validation failed: %w", err)
	}

	return nil
}

// validateStreams requires unique, non-empty stream names and files.
func validateStreams(config *Config) error {
	if config.MetricsFile == "" {
		return fmt.Errorf("metrics file must be set")
	}

	seen := make(map[string]bool, len(config.Streams))
	for i, s := range config.Streams {
		if s.Name == "" {
			return fmt.Errorf("stream %d has no name", i)
		}
		if s.File == "" {
			return fmt.Errorf("stream %q has no file", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stream name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// validateProcess requires two distinct signatures.
func validateProcess(config *Config) error {
	primary := strings.TrimSpace(config.Process.PrimarySignature)
	worker := strings.TrimSpace(config.Process.WorkerSignature)
	if primary == "" || worker == "" {
		return fmt.Errorf("primary and worker signatures must be set")
	}
	if strings.EqualFold(primary, worker) {
		return fmt.Errorf("primary and worker signatures must differ, both are %q", primary)
	}
	return nil
}

// validateTiming validates cadences and thresholds.
func validateTiming(config *Config) error {
	t := config.Timing

	if t.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", t.PollInterval)
	}
	if t.QueryTimeout <= 0 {
		return fmt.Errorf("query timeout must be positive, got %v", t.QueryTimeout)
	}
	if t.QueryTimeout > t.PollInterval {
		return fmt.Errorf("query timeout %v must be <= poll interval %v", t.QueryTimeout, t.PollInterval)
	}
	if t.MetricsInterval <= 0 {
		return fmt.Errorf("metrics interval must be positive, got %v", t.MetricsInterval)
	}
	if t.StaleAfter <= 0 {
		return fmt.Errorf("stale threshold must be positive, got %v", t.StaleAfter)
	}
	if t.WatchRetryInterval <= 0 {
		return fmt.Errorf("watch retry interval must be positive, got %v", t.WatchRetryInterval)
	}
	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval)
	}

	// Heartbeat jitter must be non-negative and <= 50% of interval
	if t.HeartbeatJitter < 0 {
		return fmt.Errorf("heartbeat jitter must be non-negative, got %v", t.HeartbeatJitter)
	}
	if t.HeartbeatJitter > t.HeartbeatInterval/2 {
		return fmt.Errorf("heartbeat jitter %v exceeds 50%% of interval %v", t.HeartbeatJitter, t.HeartbeatInterval)
	}

	if config.Command.Timeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %v", config.Command.Timeout)
	}
	if config.HTTP.ReadTimeout < 0 || config.HTTP.WriteTimeout < 0 || config.HTTP.IdleTimeout < 0 {
		return fmt.Errorf("http timeouts must be non-negative")
	}
	return nil
}

// validateTail validates tail engine bounds.
func validateTail(config *Config) error {
	t := config.Tail

	if t.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %v", t.Debounce)
	}
	if t.FloodThreshold <= 0 {
		return fmt.Errorf("flood threshold must be positive, got %d", t.FloodThreshold)
	}
	if t.BufferCapacity <= 0 {
		return fmt.Errorf("buffer capacity must be positive, got %d", t.BufferCapacity)
	}
	if t.HistoryLines <= 0 || t.HistoryLines > t.BufferCapacity {
		return fmt.Errorf("history lines %d must be in [1, %d]", t.HistoryLines, t.BufferCapacity)
	}
	return nil
}

// validateAuth checks that the selected algorithm has key material.
func validateAuth(config *Config) error {
	switch config.Auth.Algorithm {
	case "":
		return nil
	case "HS256":
		if config.Auth.Secret == "" {
			return fmt.Errorf("HS256 requires a secret")
		}
	case "RS256":
		if config.Auth.PublicKeyFile == "" {
			return fmt.Errorf("RS256 requires a public key file")
		}
	default:
		return fmt.Errorf("unsupported algorithm %q", config.Auth.Algorithm)
	}
	return nil
}

func validateLogging(config *Config) error {
	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", config.Logging.Level)
	}
	if config.Logging.MaxSizeMB < 0 || config.Logging.MaxBackups < 0 || config.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation limits must be non-negative")
	}
	return nil
}
