package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Backend     BackendConfig   `toml:"backend"`
	Analytics   AnalyticsConfig `toml:"analytics"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Logging     LoggingConfig   `toml:"logging"`
	Defaults    DefaultsConfig  `toml:"defaults"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger     BadgerConfig     `toml:"badger"`
	Filesystem FilesystemConfig `toml:"filesystem"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type FilesystemConfig struct {
	Outputs    string `toml:"outputs"`    // Organized artifact root (per-user/date layout below)
	Thumbnails string `toml:"thumbnails"` // Thumbnail root mirroring the outputs layout
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max delivery attempts before a task dead-ends
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
	RetryBackoffCap   string `toml:"retry_backoff_cap"`  // Ceiling on exponential retry delay (default "600s")
	RecycleAfter      int    `toml:"recycle_after"`      // Tasks processed before a worker goroutine restarts
	SoftTimeLimit     string `toml:"soft_time_limit"`    // Per-task soft deadline (context cancellation)
	HardTimeLimit     string `toml:"hard_time_limit"`    // Per-task hard deadline (task abandoned)
}

// BackendConfig selects and tunes the render backend
type BackendConfig struct {
	Kind          string `toml:"kind"`           // "primary" or "mock"
	URL           string `toml:"url"`            // Render backend base URL
	OutputDir     string `toml:"output_dir"`     // Directory the backend writes raw outputs to
	PollInterval  string `toml:"poll_interval"`  // History poll cadence while waiting for outputs
	RenderTimeout string `toml:"render_timeout"` // Ceiling on wait-for-outputs per prompt
}

// AnalyticsConfig tunes telemetry capture, transfer and rollup
type AnalyticsConfig struct {
	Enabled          bool   `toml:"enabled"`           // Capture middleware on/off; off also disables transfer
	Namespace        string `toml:"namespace"`         // Topic namespace prefix (default "atelier")
	BufferMaxLen     int    `toml:"buffer_max_len"`    // Per-stream entry cap before trim (default 100000)
	TransferBatch    int    `toml:"transfer_batch"`    // Max entries drained per transfer run (default 1000)
	TransferSchedule string `toml:"transfer_schedule"` // Cron spec for stream-to-store transfer
	RollupSchedule   string `toml:"rollup_schedule"`   // Cron spec for hourly rollups
	TrendsSchedule   string `toml:"trends_schedule"`   // Cron spec for model-cardinality refresh
}

// WebSocketConfig contains configuration for the progress relay
type WebSocketConfig struct {
	ReadBufferSize   int    `toml:"read_buffer_size"`
	WriteBufferSize  int    `toml:"write_buffer_size"`
	WriteTimeout     string `toml:"write_timeout"`      // Per-frame write deadline
	SubscriberBuffer int    `toml:"subscriber_buffer"`  // Per-connection bus channel depth
	MaxJobsPerConn   int    `toml:"max_jobs_per_conn"`  // Cap on job_ids accepted on one multi-job socket
	PublishRateLimit int    `toml:"publish_rate_limit"` // Max relayed frames per second per connection (0 = unlimited)
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// DefaultsConfig holds generation submission defaults
type DefaultsConfig struct {
	CheckpointModel string `toml:"checkpoint_model"`
	Width           int    `toml:"width"`
	Height          int    `toml:"height"`
	BatchSize       int    `toml:"batch_size"`
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in atelier.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			Filesystem: FilesystemConfig{
				Outputs:    "./data/outputs",
				Thumbnails: "./data/thumbnails",
			},
		},
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4, // Render jobs are GPU-bound downstream; keep dispatch modest
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "atelier_jobs",
			RetryBackoffCap:   "600s",
			RecycleAfter:      100,
			SoftTimeLimit:     "25m",
			HardTimeLimit:     "30m",
		},
		Backend: BackendConfig{
			Kind:          "primary",
			URL:           "http://localhost:8188",
			OutputDir:     "./data/backend-output",
			PollInterval:  "2s",
			RenderTimeout: "20m",
		},
		Analytics: AnalyticsConfig{
			Enabled:          true,
			Namespace:        "atelier",
			BufferMaxLen:     100000,
			TransferBatch:    1000,
			TransferSchedule: "0 */10 * * * *", // Every 10 minutes
			RollupSchedule:   "0 5 * * * *",    // Five past each hour, for the previous closed hour
			TrendsSchedule:   "0 30 2 * * *",   // Daily model-cardinality refresh
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			WriteTimeout:     "10s",
			SubscriberBuffer: 64,
			MaxJobsPerConn:   50,
			PublishRateLimit: 0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Defaults: DefaultsConfig{
			CheckpointModel: "sd_xl_base_1.0.safetensors",
			Width:           512,
			Height:          512,
			BatchSize:       1,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks cross-field constraints that TOML parsing cannot express.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("queue concurrency must be at least 1, got %d", c.Queue.Concurrency)
	}
	if c.Queue.MaxReceive < 1 {
		return fmt.Errorf("queue max_receive must be at least 1, got %d", c.Queue.MaxReceive)
	}
	for name, val := range map[string]string{
		"queue.poll_interval":      c.Queue.PollInterval,
		"queue.visibility_timeout": c.Queue.VisibilityTimeout,
		"queue.retry_backoff_cap":  c.Queue.RetryBackoffCap,
		"queue.soft_time_limit":    c.Queue.SoftTimeLimit,
		"queue.hard_time_limit":    c.Queue.HardTimeLimit,
		"backend.poll_interval":    c.Backend.PollInterval,
		"backend.render_timeout":   c.Backend.RenderTimeout,
		"websocket.write_timeout":  c.WebSocket.WriteTimeout,
	} {
		if _, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", name, val)
		}
	}
	if c.Backend.Kind != "primary" && c.Backend.Kind != "mock" {
		return fmt.Errorf("backend kind must be primary or mock, got %q", c.Backend.Kind)
	}
	if c.Analytics.BufferMaxLen < 1 {
		return fmt.Errorf("analytics buffer_max_len must be positive, got %d", c.Analytics.BufferMaxLen)
	}
	if c.Analytics.TransferBatch < 1 {
		return fmt.Errorf("analytics transfer_batch must be positive, got %d", c.Analytics.TransferBatch)
	}
	return nil
}

// Duration parses a duration config value that Validate has already checked.
func Duration(val string) time.Duration {
	d, _ := time.ParseDuration(val)
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ATELIER_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("ATELIER_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ATELIER_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("ATELIER_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if outputs := os.Getenv("ATELIER_OUTPUTS_DIR"); outputs != "" {
		config.Storage.Filesystem.Outputs = outputs
	}

	// Queue configuration
	if pollInterval := os.Getenv("ATELIER_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if concurrency := os.Getenv("ATELIER_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if visibilityTimeout := os.Getenv("ATELIER_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxReceive := os.Getenv("ATELIER_QUEUE_MAX_RECEIVE"); maxReceive != "" {
		if mr, err := strconv.Atoi(maxReceive); err == nil {
			config.Queue.MaxReceive = mr
		}
	}
	if queueName := os.Getenv("ATELIER_QUEUE_NAME"); queueName != "" {
		config.Queue.QueueName = queueName
	}

	// Backend configuration
	if kind := os.Getenv("ATELIER_BACKEND_KIND"); kind != "" {
		config.Backend.Kind = kind
	}
	if url := os.Getenv("ATELIER_BACKEND_URL"); url != "" {
		config.Backend.URL = url
	}
	if renderTimeout := os.Getenv("ATELIER_BACKEND_RENDER_TIMEOUT"); renderTimeout != "" {
		config.Backend.RenderTimeout = renderTimeout
	}

	// Analytics configuration
	if enabled := os.Getenv("ATELIER_ANALYTICS_ENABLED"); enabled != "" {
		if en, err := strconv.ParseBool(enabled); err == nil {
			config.Analytics.Enabled = en
		}
	}
	if ns := os.Getenv("ATELIER_ANALYTICS_NAMESPACE"); ns != "" {
		config.Analytics.Namespace = ns
	}
	if maxLen := os.Getenv("ATELIER_ANALYTICS_BUFFER_MAX_LEN"); maxLen != "" {
		if ml, err := strconv.Atoi(maxLen); err == nil {
			config.Analytics.BufferMaxLen = ml
		}
	}
	if batch := os.Getenv("ATELIER_ANALYTICS_TRANSFER_BATCH"); batch != "" {
		if b, err := strconv.Atoi(batch); err == nil {
			config.Analytics.TransferBatch = b
		}
	}

	// Logging configuration
	if level := os.Getenv("ATELIER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("ATELIER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("ATELIER_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}
