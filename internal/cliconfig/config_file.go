package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Endpoint         string `toml:"endpoint"`
	AuthKey          string `toml:"auth_key"`
	DeveloperMode    *bool  `toml:"developer_mode"`
	BackoffPolicy    string `toml:"backoff_policy"`
	Compression      string `toml:"compression"`
	RetryDir         string `toml:"retry_dir"`
	RetryDirCapacity int64  `toml:"retry_dir_capacity"`

	MaxBatchSize  int    `toml:"max_batch_size"`
	FlushInterval string `toml:"flush_interval"`
	HTTPTimeout   string `toml:"http_timeout"`

	LoaderWorkers      int    `toml:"loader_workers"`
	LoaderIdleInterval string `toml:"loader_idle_interval"`

	Network    PoolFileConfig `toml:"network"`
	FileSystem PoolFileConfig `toml:"filesystem"`

	Cleanup CleanupFileConfig `toml:"cleanup"`

	MetricsAddr     string `toml:"metrics_addr"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// PoolFileConfig is the [network] or [filesystem] worker pool table.
type PoolFileConfig struct {
	MinWorkers  int    `toml:"min_workers"`
	MaxWorkers  int    `toml:"max_workers"`
	QueueSize   int    `toml:"queue_size"`
	IdleTimeout string `toml:"idle_timeout"`
}

// CleanupFileConfig is the [cleanup] table.
type CleanupFileConfig struct {
	HighWatermark int64  `toml:"high_watermark"`
	LowWatermark  int64  `toml:"low_watermark"`
	MaxAge        string `toml:"max_age"`
	Interval      string `toml:"interval"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.telship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".telship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("endpoint", fc.Endpoint, &cfg.Endpoint)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("backoff-policy", fc.BackoffPolicy, &cfg.BackoffPolicy)
	s.setString("compression", fc.Compression, &cfg.Compression)
	s.setString("retry-dir", fc.RetryDir, &cfg.RetryDir)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	s.setBool("developer-mode", fc.DeveloperMode, &cfg.DeveloperMode)

	s.setInt64("retry-dir-capacity", fc.RetryDirCapacity, &cfg.RetryDirCapacity)
	s.setInt("max-batch-size", fc.MaxBatchSize, &cfg.MaxBatchSize)
	s.setInt("loader-workers", fc.LoaderWorkers, &cfg.LoaderWorkers)

	s.setInt("network-min-workers", fc.Network.MinWorkers, &cfg.NetworkMinWorkers)
	s.setInt("network-max-workers", fc.Network.MaxWorkers, &cfg.NetworkMaxWorkers)
	s.setInt("network-queue-size", fc.Network.QueueSize, &cfg.NetworkQueueSize)
	s.setInt("filesystem-min-workers", fc.FileSystem.MinWorkers, &cfg.FileSystemMinWorkers)
	s.setInt("filesystem-max-workers", fc.FileSystem.MaxWorkers, &cfg.FileSystemMaxWorkers)
	s.setInt("filesystem-queue-size", fc.FileSystem.QueueSize, &cfg.FileSystemQueueSize)

	s.setInt64("cleanup-high-watermark", fc.Cleanup.HighWatermark, &cfg.CleanupHighWatermark)
	s.setInt64("cleanup-low-watermark", fc.Cleanup.LowWatermark, &cfg.CleanupLowWatermark)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"flush-interval", fc.FlushInterval, &cfg.FlushInterval},
		{"http-timeout", fc.HTTPTimeout, &cfg.HTTPTimeout},
		{"loader-idle-interval", fc.LoaderIdleInterval, &cfg.LoaderIdleInterval},
		{"network-idle-timeout", fc.Network.IdleTimeout, &cfg.NetworkIdleTimeout},
		{"filesystem-idle-timeout", fc.FileSystem.IdleTimeout, &cfg.FileSystemIdleTimeout},
		{"cleanup-max-age", fc.Cleanup.MaxAge, &cfg.CleanupMaxAge},
		{"cleanup-interval", fc.Cleanup.Interval, &cfg.CleanupInterval},
		{"shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
