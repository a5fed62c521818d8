// Package configwatcher provides config file monitoring for telship.
// When enabled, it watches the telship TOML config file and applies the
// settings a running channel can change in place, currently developer mode.
package configwatcher

import (
	"context"
	"errors"
	iofs "io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/telship/internal/cliconfig"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/pkg/telship"
)

// Plugin implements config watching functionality.
// It watches the directory holding the config file, since editors commonly
// replace files by rename, and reloads the file when it changes.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	debounceDelay time.Duration

	// Runtime state
	channel  telship.Controller
	logger   telship.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the TOML file to watch.
	// Default: ~/.telship/config.toml
	Path string

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Path:          cliconfig.DefaultConfigPath(),
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.Path == "" {
		cfg.Path = cliconfig.DefaultConfigPath()
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}

	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize applies the current file contents and starts the watcher.
// A missing or invalid file is logged, not fatal.
func (p *Plugin) Initialize(ctx context.Context, cfg telship.PluginConfig) error {
	p.mu.Lock()
	p.channel = cfg.Channel
	p.logger = cfg.Logger
	p.mu.Unlock()

	if p.path == "" || p.channel == nil {
		p.logger.Warn("config watcher disabled: no config path or channel")
		return nil
	}

	p.reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("config watcher: failed to create watcher", ports.Err(err))
		return nil
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		p.logger.Error("config watcher: failed to watch directory",
			ports.String("dir", filepath.Dir(p.path)), ports.Err(err))
		_ = watcher.Close()
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("config watcher plugin initialized", ports.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher: watcher error", ports.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload()
	})
}

// reload reads the config file and applies it to the channel.
func (p *Plugin) reload() {
	fc, err := cliconfig.LoadFileConfig(p.path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			p.logger.Debug("config watcher: config file not found", ports.String("path", p.path))
			return
		}
		p.logger.Error("config watcher: failed to load config", ports.String("path", p.path), ports.Err(err))
		return
	}

	if fc.DeveloperMode != nil && *fc.DeveloperMode != p.channel.IsDeveloperMode() {
		p.channel.SetDeveloperMode(*fc.DeveloperMode)
		p.logger.Info("config watcher: applied developer mode", ports.Bool("enabled", *fc.DeveloperMode))
	}
}

// Ensure Plugin implements telship.Plugin.
var _ telship.Plugin = (*Plugin)(nil)
