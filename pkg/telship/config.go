package telship

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	fsadapter "github.com/bft-labs/telship/internal/adapters/fs"
	"github.com/bft-labs/telship/internal/app"
	"github.com/bft-labs/telship/internal/codec"
	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/workerpool"
)

// DefaultEndpoint is used when Config.Endpoint is empty.
const DefaultEndpoint = "https://api.apphash.io/v1/ingest/telemetry"

// Backoff policy names accepted by Config.BackoffPolicy.
const (
	BackoffExponential = app.BackoffExponential
	BackoffStatic      = app.BackoffStatic
)

// Config holds the configuration of a Channel.
// Zero values are replaced by defaults in SetDefaults.
type Config struct {
	// Endpoint is the ingest URL. Empty selects DefaultEndpoint.
	Endpoint string

	// AuthKey, if set, is sent as a bearer token.
	AuthKey string

	// Headers are added to every request.
	Headers map[string]string

	// DeveloperMode flushes every record on its own and logs each one at debug level.
	DeveloperMode bool

	// BackoffPolicy selects the replay schedule: "exponential" (default) or "static".
	// Matching is case-insensitive; unknown values fall back to exponential.
	BackoffPolicy string

	// Compression is "gzip" (default), "zstd" or "lz4".
	Compression string

	// RetryDir is where failed transmissions are persisted.
	RetryDir string

	// RetryDirCapacity bounds the bytes held in RetryDir. Default: 10 MiB.
	RetryDirCapacity int64

	// MaxBatchSize is the number of records that triggers a flush. Default: 500.
	MaxBatchSize int

	// FlushInterval forces a flush of a partial batch. Default: 10s.
	FlushInterval time.Duration

	// HTTPTimeout bounds each delivery attempt. Default: 15s.
	HTTPTimeout time.Duration

	// LoaderWorkers is the number of replay workers (1 to 9). Default: 1.
	LoaderWorkers int

	// LoaderIdleInterval is the sleep between polls of an empty retry directory. Default: 2s.
	LoaderIdleInterval time.Duration

	// NetworkPool sizes the delivery workers. Default: 1..7 workers, queue 1024, idle 60s.
	NetworkPool PoolConfig

	// FileSystemPool sizes the persistence workers. Default: 1..3 workers, queue 1024, idle 20s.
	FileSystemPool PoolConfig
}

// PoolConfig sizes a worker pool.
type PoolConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.SetDefaults()
	return c
}

// SetDefaults fills zero-valued fields with their defaults.
func (c *Config) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.BackoffPolicy == "" {
		c.BackoffPolicy = BackoffExponential
	}
	if c.Compression == "" {
		c.Compression = string(codec.Gzip)
	}
	if c.RetryDir == "" {
		c.RetryDir = defaultRetryDir()
	}
	if c.RetryDirCapacity <= 0 {
		c.RetryDirCapacity = fsadapter.DefaultCapacity
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = app.DefaultMaxBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = app.DefaultFlushInterval
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	if c.LoaderWorkers == 0 {
		c.LoaderWorkers = app.DefaultLoaderWorkers
	}
	if c.LoaderIdleInterval <= 0 {
		c.LoaderIdleInterval = app.DefaultLoaderIdleInterval
	}
	c.NetworkPool.setDefaults(app.DefaultNetworkPool)
	c.FileSystemPool.setDefaults(app.DefaultFileSystemPool)
}

func (p *PoolConfig) setDefaults(def workerpool.Config) {
	if p.MinWorkers <= 0 {
		p.MinWorkers = def.MinWorkers
	}
	if p.MaxWorkers <= 0 {
		p.MaxWorkers = max(def.MaxWorkers, p.MinWorkers)
	}
	if p.QueueSize <= 0 {
		p.QueueSize = def.QueueSize
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = def.IdleTimeout
	}
}

func (p PoolConfig) poolConfig(name string) workerpool.Config {
	return workerpool.Config{
		Name:        name,
		MinWorkers:  p.MinWorkers,
		MaxWorkers:  p.MaxWorkers,
		QueueSize:   p.QueueSize,
		IdleTimeout: p.IdleTimeout,
	}
}

// Validate checks the configuration for errors. New calls SetDefaults first,
// so only explicitly bad values fail here.
// An endpoint that is not a valid absolute http(s) URI wraps ErrInvalidEndpoint;
// every other problem wraps ErrInvalidConfig.
func (c Config) Validate() error {
	if c.Endpoint != "" {
		u, err := url.ParseRequestURI(c.Endpoint)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidEndpoint, c.Endpoint)
		}
	}
	if _, err := codec.ParseCompression(c.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.RetryDir == "" {
		return fmt.Errorf("%w: retry directory is required", ErrInvalidConfig)
	}
	if c.MaxBatchSize < 0 {
		return fmt.Errorf("%w: max batch size must not be negative", ErrInvalidConfig)
	}
	if c.LoaderWorkers < 0 || c.LoaderWorkers > app.MaxLoaderWorkers {
		return fmt.Errorf("%w: loader workers must be between 1 and %d", ErrInvalidConfig, app.MaxLoaderWorkers)
	}
	pools := []struct {
		name string
		cfg  PoolConfig
	}{
		{"network", c.NetworkPool},
		{"filesystem", c.FileSystemPool},
	}
	for _, p := range pools {
		if p.cfg == (PoolConfig{}) {
			continue
		}
		if err := p.cfg.poolConfig(p.name).Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}

func defaultRetryDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".telship", "retry")
	}
	return filepath.Join(os.TempDir(), "telship", "retry")
}

// Errors returned by the public API. Check with errors.Is.
var (
	ErrInvalidEndpoint = domain.ErrInvalidEndpoint
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrNilRecord       = domain.ErrNilRecord
)
