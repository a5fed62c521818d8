package cliconfig

import (
	"os"
	"time"
)

// ApplyEnvConfig applies configuration from environment variables (TELSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint", os.Getenv("TELSHIP_ENDPOINT"), &cfg.Endpoint)
	s.setString("auth-key", os.Getenv("TELSHIP_AUTH_KEY"), &cfg.AuthKey)
	s.setString("backoff-policy", os.Getenv("TELSHIP_BACKOFF_POLICY"), &cfg.BackoffPolicy)
	s.setString("compression", os.Getenv("TELSHIP_COMPRESSION"), &cfg.Compression)
	s.setString("retry-dir", os.Getenv("TELSHIP_RETRY_DIR"), &cfg.RetryDir)
	s.setString("metrics-addr", os.Getenv("TELSHIP_METRICS_ADDR"), &cfg.MetricsAddr)

	s.setBoolFromString("developer-mode", os.Getenv("TELSHIP_DEVELOPER_MODE"), &cfg.DeveloperMode)
	s.setBoolFromString("follow", os.Getenv("TELSHIP_FOLLOW"), &cfg.Follow)

	ints := []struct {
		flag string
		env  string
		dst  *int
	}{
		{"max-batch-size", "TELSHIP_MAX_BATCH_SIZE", &cfg.MaxBatchSize},
		{"loader-workers", "TELSHIP_LOADER_WORKERS", &cfg.LoaderWorkers},
		{"network-min-workers", "TELSHIP_NETWORK_MIN_WORKERS", &cfg.NetworkMinWorkers},
		{"network-max-workers", "TELSHIP_NETWORK_MAX_WORKERS", &cfg.NetworkMaxWorkers},
		{"network-queue-size", "TELSHIP_NETWORK_QUEUE_SIZE", &cfg.NetworkQueueSize},
		{"filesystem-min-workers", "TELSHIP_FILESYSTEM_MIN_WORKERS", &cfg.FileSystemMinWorkers},
		{"filesystem-max-workers", "TELSHIP_FILESYSTEM_MAX_WORKERS", &cfg.FileSystemMaxWorkers},
		{"filesystem-queue-size", "TELSHIP_FILESYSTEM_QUEUE_SIZE", &cfg.FileSystemQueueSize},
	}
	for _, v := range ints {
		if err := s.setIntFromString(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	int64s := []struct {
		flag string
		env  string
		dst  *int64
	}{
		{"retry-dir-capacity", "TELSHIP_RETRY_DIR_CAPACITY", &cfg.RetryDirCapacity},
		{"cleanup-high-watermark", "TELSHIP_CLEANUP_HIGH_WATERMARK", &cfg.CleanupHighWatermark},
		{"cleanup-low-watermark", "TELSHIP_CLEANUP_LOW_WATERMARK", &cfg.CleanupLowWatermark},
	}
	for _, v := range int64s {
		if err := s.setInt64FromString(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		flag string
		env  string
		dst  *time.Duration
	}{
		{"flush-interval", "TELSHIP_FLUSH_INTERVAL", &cfg.FlushInterval},
		{"http-timeout", "TELSHIP_HTTP_TIMEOUT", &cfg.HTTPTimeout},
		{"loader-idle-interval", "TELSHIP_LOADER_IDLE_INTERVAL", &cfg.LoaderIdleInterval},
		{"network-idle-timeout", "TELSHIP_NETWORK_IDLE_TIMEOUT", &cfg.NetworkIdleTimeout},
		{"filesystem-idle-timeout", "TELSHIP_FILESYSTEM_IDLE_TIMEOUT", &cfg.FileSystemIdleTimeout},
		{"cleanup-max-age", "TELSHIP_CLEANUP_MAX_AGE", &cfg.CleanupMaxAge},
		{"cleanup-interval", "TELSHIP_CLEANUP_INTERVAL", &cfg.CleanupInterval},
		{"shutdown-timeout", "TELSHIP_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, v := range durations {
		if err := s.setDuration(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	return nil
}
