package configwatcher

import "github.com/bft-labs/telship/pkg/telship"

// WithConfigWatcher returns a telship Option that enables config file watching.
// When enabled, developer_mode in the file is applied to the running channel
// whenever the file changes.
//
// Usage:
//
//	ch, err := telship.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/telship/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) telship.Option {
	plugin := New(cfg)
	return telship.WithPlugin(plugin)
}

// WithDefaultConfigWatcher returns a telship Option that watches
// ~/.telship/config.toml with a 100ms debounce.
func WithDefaultConfigWatcher() telship.Option {
	return WithConfigWatcher(DefaultConfig())
}
