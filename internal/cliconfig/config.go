package cliconfig

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DefaultEndpoint is the default ingest endpoint for telemetry batches.
const DefaultEndpoint = "https://api.apphash.io/v1/ingest/telemetry"

// Config holds CLI configuration for telship.
type Config struct {
	Endpoint string
	AuthKey  string

	DeveloperMode bool
	BackoffPolicy string
	Compression   string

	RetryDir         string
	RetryDirCapacity int64

	MaxBatchSize  int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration

	LoaderWorkers      int
	LoaderIdleInterval time.Duration

	NetworkMinWorkers     int
	NetworkMaxWorkers     int
	NetworkQueueSize      int
	NetworkIdleTimeout    time.Duration
	FileSystemMinWorkers  int
	FileSystemMaxWorkers  int
	FileSystemQueueSize   int
	FileSystemIdleTimeout time.Duration

	CleanupHighWatermark int64
	CleanupLowWatermark  int64
	CleanupMaxAge        time.Duration
	CleanupInterval      time.Duration

	MetricsAddr     string
	ShutdownTimeout time.Duration
	Follow          bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Endpoint:              DefaultEndpoint,
		AuthKey:               os.Getenv("TELSHIP_AUTH_KEY"),
		BackoffPolicy:         "exponential",
		Compression:           "gzip",
		RetryDir:              DefaultRetryDir(),
		RetryDirCapacity:      10 << 20, // 10MB
		MaxBatchSize:          500,
		FlushInterval:         10 * time.Second,
		HTTPTimeout:           15 * time.Second,
		LoaderWorkers:         1,
		LoaderIdleInterval:    2 * time.Second,
		NetworkMinWorkers:     1,
		NetworkMaxWorkers:     7,
		NetworkQueueSize:      1024,
		NetworkIdleTimeout:    60 * time.Second,
		FileSystemMinWorkers:  1,
		FileSystemMaxWorkers:  3,
		FileSystemQueueSize:   1024,
		FileSystemIdleTimeout: 20 * time.Second,
		CleanupHighWatermark:  8 << 20,
		CleanupLowWatermark:   6 << 20,
		CleanupMaxAge:         72 * time.Hour,
		CleanupInterval:       time.Minute,
		ShutdownTimeout:       30 * time.Second,
	}
}

// DefaultRetryDir returns ~/.telship/retry, or a directory under the system
// temp dir when the home directory is unavailable.
func DefaultRetryDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".telship", "retry")
	}
	return filepath.Join(os.TempDir(), "telship", "retry")
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("endpoint %q is not a valid http(s) URL", c.Endpoint)
		}
	}

	if c.RetryDir == "" {
		c.RetryDir = DefaultRetryDir()
	}

	if c.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive")
	}
	if c.LoaderWorkers < 1 || c.LoaderWorkers > 9 {
		return fmt.Errorf("loader workers must be between 1 and 9")
	}
	if c.NetworkMaxWorkers < c.NetworkMinWorkers || c.NetworkMinWorkers < 1 {
		return fmt.Errorf("network workers: need 1 <= min <= max")
	}
	if c.FileSystemMaxWorkers < c.FileSystemMinWorkers || c.FileSystemMinWorkers < 1 {
		return fmt.Errorf("filesystem workers: need 1 <= min <= max")
	}
	if c.CleanupHighWatermark > 0 && c.CleanupLowWatermark >= c.CleanupHighWatermark {
		return fmt.Errorf("cleanup low watermark must be below the high watermark")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}

	return nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt64 sets an int64 value if positive and flag not changed.
func (s *configSetter) setInt64(flag string, value int64, dst *int64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses an environment value and sets it if positive.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setInt64FromString parses an environment value and sets it if positive.
func (s *configSetter) setInt64FromString(flag, value string, dst *int64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
