package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete monitor configuration.
type Config struct {
	// DataDir is the agent's state directory; relative paths below resolve against it.
	DataDir     string `yaml:"dataDir"`
	LogDir      string `yaml:"logDir"`
	MetricsFile string `yaml:"metricsFile"`
	JobsFile    string `yaml:"jobsFile"`
	AuditFile   string `yaml:"auditFile"`

	// Streams is the fixed, ordered set of tailed log files.
	Streams []StreamConfig `yaml:"streams"`

	Process ProcessConfig `yaml:"process"`
	Timing  TimingConfig  `yaml:"timing"`
	Tail    TailConfig    `yaml:"tail"`
	HTTP    HTTPConfig    `yaml:"http"`
	Command CommandConfig `yaml:"command"`
	Auth    AuthConfig    `yaml:"auth"`
	Logging LoggingConfig `yaml:"logging"`
}

// StreamConfig maps a logical stream name to its backing file.
type StreamConfig struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// ProcessConfig holds the command-line substrings that identify the
// supervised processes in the process table.
type ProcessConfig struct {
	PrimarySignature string `yaml:"primarySignature"`
	WorkerSignature  string `yaml:"workerSignature"`
}

// TimingConfig holds polling cadences and freshness thresholds.
type TimingConfig struct {
	PollInterval       time.Duration `yaml:"pollInterval"`
	QueryTimeout       time.Duration `yaml:"queryTimeout"`
	MetricsInterval    time.Duration `yaml:"metricsInterval"`
	StaleAfter         time.Duration `yaml:"staleAfter"`
	WatchRetryInterval time.Duration `yaml:"watchRetryInterval"`
	HeartbeatInterval  time.Duration `yaml:"heartbeatInterval"`
	HeartbeatJitter    time.Duration `yaml:"heartbeatJitter"`
}

// TailConfig bounds the log tail engine.
type TailConfig struct {
	Debounce       time.Duration `yaml:"debounce"`
	FloodThreshold int64         `yaml:"floodThreshold"`
	HistoryLines   int           `yaml:"historyLines"`
	BufferCapacity int           `yaml:"bufferCapacity"`
}

// HTTPConfig holds API server settings. WriteTimeout 0 keeps SSE streams open.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
}

// CommandConfig points at the agent's start/stop endpoint.
type CommandConfig struct {
	BaseURL string        `yaml:"baseUrl"`
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig enables bearer-token verification when Algorithm is set.
type AuthConfig struct {
	Algorithm     string `yaml:"algorithm"` // "", "HS256" or "RS256"
	Secret        string `yaml:"secret"`
	PublicKeyFile string `yaml:"publicKeyFile"`
}

// LoggingConfig controls the monitor's own structured log.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// LoadBaseline returns the default configuration.
func LoadBaseline() *Config {
	return &Config{
		DataDir:     defaultDataDir(),
		LogDir:      "logs",
		MetricsFile: "metrics.bin",
		JobsFile:    "jobs.json",
		AuditFile:   "audit.jsonl",
		Streams: []StreamConfig{
			{Name: "angel", File: "angel.jsonl"},
			{Name: "trinity", File: "trinity.jsonl"},
			{Name: "scheduler", File: "scheduler.jsonl"},
		},
		Process: ProcessConfig{
			PrimarySignature: "angel-supervisor",
			WorkerSignature:  "trinity-worker",
		},
		Timing: TimingConfig{
			PollInterval:       5 * time.Second,
			QueryTimeout:       3 * time.Second,
			MetricsInterval:    1 * time.Second,
			StaleAfter:         2 * time.Second,
			WatchRetryInterval: 2 * time.Second,
			HeartbeatInterval:  15 * time.Second,
			HeartbeatJitter:    2 * time.Second,
		},
		Tail: TailConfig{
			Debounce:       50 * time.Millisecond,
			FloodThreshold: 100 * 1024,
			HistoryLines:   89,
			BufferCapacity: 500,
		},
		HTTP: HTTPConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		Command: CommandConfig{
			BaseURL: "http://127.0.0.1:8765",
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// StreamPath is a stream with its resolved file location.
type StreamPath struct {
	Name string
	Path string
}

// StreamPaths returns the configured streams in order with absolute-or-DataDir
// relative paths resolved.
func (c *Config) StreamPaths() []StreamPath {
	logDir := c.LogDirPath()
	paths := make([]StreamPath, 0, len(c.Streams))
	for _, s := range c.Streams {
		paths = append(paths, StreamPath{Name: s.Name, Path: resolve(logDir, s.File)})
	}
	return paths
}

// LogDirPath returns the resolved log directory.
func (c *Config) LogDirPath() string { return resolve(c.DataDir, c.LogDir) }

// MetricsPath returns the resolved metrics file.
func (c *Config) MetricsPath() string { return resolve(c.DataDir, c.MetricsFile) }

// JobsPath returns the resolved job configuration file.
func (c *Config) JobsPath() string { return resolve(c.DataDir, c.JobsFile) }

// AuditPath returns the resolved audit log file.
func (c *Config) AuditPath() string { return resolve(c.DataDir, c.AuditFile) }

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".angel"
	}
	return filepath.Join(home, ".angel")
}
