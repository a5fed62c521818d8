// Package retrycleanup keeps the telship retry directory bounded.
// It periodically removes persisted transmissions older than a maximum age
// and, when the directory grows past a high watermark, removes the oldest
// transmissions until it is below the low watermark.
package retrycleanup

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"sync"
	"time"

	fsadapter "github.com/bft-labs/telship/internal/adapters/fs"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/telship"
)

// Plugin implements retry directory cleanup.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	checkInterval  time.Duration
	maxAge         time.Duration
	highWatermark  int64
	lowWatermark   int64
	runImmediately bool
	now            func() time.Time

	// Runtime state
	store  telship.RetryStore
	logger telship.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration options for the cleanup plugin.
type Config struct {
	// CheckInterval is how often the directory is checked.
	// Default: 1 minute
	CheckInterval time.Duration

	// MaxAge removes transmissions persisted longer ago than this.
	// Zero disables age-based cleanup.
	MaxAge time.Duration

	// HighWatermark is the size in bytes above which cleanup begins.
	// Zero disables size-based cleanup.
	HighWatermark int64

	// LowWatermark is the target size in bytes after cleanup.
	// Default: three quarters of HighWatermark
	LowWatermark int64

	// RunImmediately runs a check on Initialize.
	RunImmediately bool
}

// DefaultConfig returns a Config with sensible defaults: checks every minute,
// drops transmissions older than 72 hours and trims the directory from 8 MiB
// down to 6 MiB.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  time.Minute,
		MaxAge:         72 * time.Hour,
		HighWatermark:  8 << 20,
		LowWatermark:   6 << 20,
		RunImmediately: true,
	}
}

// New creates a new cleanup plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.HighWatermark > 0 && (cfg.LowWatermark <= 0 || cfg.LowWatermark >= cfg.HighWatermark) {
		cfg.LowWatermark = cfg.HighWatermark / 4 * 3
	}

	return &Plugin{
		checkInterval:  cfg.CheckInterval,
		maxAge:         cfg.MaxAge,
		highWatermark:  cfg.HighWatermark,
		lowWatermark:   cfg.LowWatermark,
		runImmediately: cfg.RunImmediately,
		now:            time.Now,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "retrycleanup"
}

// Initialize records the retry directory and starts the cleanup loop.
func (p *Plugin) Initialize(ctx context.Context, cfg telship.PluginConfig) error {
	p.mu.Lock()
	p.store = cfg.RetryStore
	if p.store == nil && cfg.RetryDir != "" {
		p.store = dirStore(cfg.RetryDir)
	}
	p.logger = cfg.Logger
	p.mu.Unlock()

	if p.store == nil {
		p.logger.Warn("retry cleanup disabled: no retry directory configured")
		return nil
	}
	if p.maxAge <= 0 && p.highWatermark <= 0 {
		p.logger.Warn("retry cleanup disabled: neither max age nor high watermark set")
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("retry cleanup plugin initialized",
		ports.Duration("interval", p.checkInterval),
		ports.Duration("max_age", p.maxAge),
		ports.Int64("high_watermark", p.highWatermark),
		ports.Int64("low_watermark", p.lowWatermark),
	)

	p.wg.Add(1)
	go p.cleanupLoop(loopCtx)

	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.runImmediately {
		p.cleanupOnce(ctx)
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cleanupOnce(ctx)
		}
	}
}

// cleanupOnce performs a single check and returns the number of files removed.
func (p *Plugin) cleanupOnce(ctx context.Context) int {
	p.mu.RLock()
	store := p.store
	p.mu.RUnlock()

	files, err := store.Files()
	if err != nil {
		p.logger.Error("retry cleanup: list failed", ports.Err(err))
		return 0
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}

	var (
		removed      int
		bytesFreed   int64
		expiredCount int
		trimming     bool
	)
	cutoff := p.now().Add(-p.maxAge)

	// Files are oldest first, so expired files form a prefix and the
	// watermark pass continues from where the age pass stopped.
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		expired := p.maxAge > 0 && f.CreatedAt.Before(cutoff)
		if !expired {
			if !trimming {
				trimming = p.highWatermark > 0 && total > p.highWatermark
			}
			if !trimming || total <= p.lowWatermark {
				break
			}
		}

		ok, err := store.Remove(f.Path)
		if err != nil {
			p.logger.Error("retry cleanup: remove failed", ports.String("file", f.Path), ports.Err(err))
			continue
		}
		if !ok {
			// Claimed by the loader in the meantime.
			total -= f.Size
			continue
		}
		removed++
		bytesFreed += f.Size
		total -= f.Size
		if expired {
			expiredCount++
		}
	}

	if removed > 0 {
		p.logger.Info("retry cleanup completed",
			ports.Int("removed", removed),
			ports.Int("expired", expiredCount),
			ports.Int64("bytes_freed", bytesFreed),
			ports.Int64("remaining_bytes", total),
		)
	}
	return removed
}

// dirStore manages a retry directory no channel is tracking.
type dirStore string

func (d dirStore) Files() ([]telship.RetryFile, error) {
	return fsadapter.List(string(d))
}

func (d dirStore) Remove(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Ensure Plugin implements telship.Plugin.
var _ telship.Plugin = (*Plugin)(nil)
