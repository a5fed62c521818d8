package telship

import (
	"context"
	"fmt"

	fsadapter "github.com/bft-labs/telship/internal/adapters/fs"
)

// Plugin extends a Channel with optional behavior. Plugins are initialized in
// registration order when the channel starts and shut down in reverse order
// when it stops.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize is called from Start. A returned error aborts the start.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called from Stop. Errors are logged, not returned.
	Shutdown(ctx context.Context) error
}

// Controller is the part of a Channel a plugin may drive at runtime.
type Controller interface {
	SetDeveloperMode(enabled bool)
	IsDeveloperMode() bool
	Status() State
}

// RetryFile describes one persisted transmission.
type RetryFile = fsadapter.FileInfo

// RetryStore is the retry directory as plugins see it. Removing files through
// it keeps the channel's size accounting and retry_dir_bytes gauge exact.
type RetryStore interface {
	// Files returns the persisted transmissions, oldest first.
	Files() ([]RetryFile, error)

	// Remove deletes one persisted transmission. It reports false when the
	// file was already gone.
	Remove(path string) (bool, error)
}

// PluginConfig is handed to every plugin on Initialize.
type PluginConfig struct {
	Endpoint string
	RetryDir string
	Logger   Logger

	// Channel controls the running channel.
	Channel Controller

	// RetryStore manages the files in RetryDir.
	RetryStore RetryStore
}

// BasePlugin provides no-op Initialize and Shutdown for embedding.
type BasePlugin struct {
	PluginName string
}

// Name returns PluginName.
func (b BasePlugin) Name() string {
	return b.PluginName
}

// Initialize does nothing.
func (BasePlugin) Initialize(context.Context, PluginConfig) error {
	return nil
}

// Shutdown does nothing.
func (BasePlugin) Shutdown(context.Context) error {
	return nil
}

func initializePlugin(ctx context.Context, p Plugin, cfg PluginConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %s panicked during initialization: %v", p.Name(), r)
		}
	}()
	return p.Initialize(ctx, cfg)
}

func shutdownPlugin(ctx context.Context, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %s panicked during shutdown: %v", p.Name(), r)
		}
	}()
	return p.Shutdown(ctx)
}
