package telship

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	fsadapter "github.com/bft-labs/telship/internal/adapters/fs"
	httpadapter "github.com/bft-labs/telship/internal/adapters/http"
	logadapter "github.com/bft-labs/telship/internal/adapters/log"
	"github.com/bft-labs/telship/internal/app"
	"github.com/bft-labs/telship/internal/codec"
	"github.com/bft-labs/telship/internal/metrics"
	"github.com/bft-labs/telship/internal/ports"
)

// Channel batches records, delivers them to the ingest endpoint and keeps
// undeliverable batches on disk until they can be replayed.
// Use New() to create an instance, then Start() to begin accepting records.
type Channel struct {
	config    Config
	opts      options
	logger    ports.Logger
	lifecycle *app.Lifecycle
	observer  app.Observer
	metrics   *metrics.Metrics

	devMu     sync.Mutex
	developer atomic.Bool

	// buffer is the live producer entry point; nil when not running.
	buffer atomic.Pointer[app.Buffer]

	// store is read by the retry_dir_bytes gauge.
	store atomic.Pointer[fsadapter.FileSystemOutput]

	mu       sync.Mutex
	pipeline *pipeline
	cancel   context.CancelFunc
	plugins  []Plugin
}

// pipeline holds the components built by Start, in stop order.
type pipeline struct {
	loader      *app.Loader
	buffer      *app.Buffer
	transmitter *app.Transmitter
	dispatcher  *app.Dispatcher
}

var _ Controller = (*Channel)(nil)

// New creates a Channel with the given configuration.
// The channel is created in StateStopped; call Start() to begin.
// Returns an error if the configuration is invalid or metrics cannot be registered.
func New(cfg Config, opts ...Option) (*Channel, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logadapter.NewNoopLogger()
	}

	c := &Channel{
		config:  cfg,
		opts:    o,
		logger:  o.logger,
		plugins: o.plugins,
	}
	c.developer.Store(cfg.DeveloperMode)

	emitter := &eventEmitter{handler: o.eventHandler}
	c.lifecycle = app.NewLifecycle(c.logger, emitter)

	observers := app.Observers{emitter}
	if o.registerer != nil {
		var labels prometheus.Labels
		if o.name != "" {
			labels = prometheus.Labels{"channel": o.name}
		}
		m, err := metrics.New(o.registerer, metrics.Options{
			ConstLabels:   labels,
			RetryDirBytes: c.retryDirBytes,
		})
		if err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
		c.metrics = m
		observers = append(observers, m)
	}
	c.observer = observers

	return c, nil
}

// Start opens the retry directory, starts the worker pools and the loader,
// and initializes plugins. Records are accepted once Start returns.
// Returns ErrAlreadyRunning if the channel is running.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lifecycle.CanStart() {
		return ErrAlreadyRunning
	}
	if err := c.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)

	p, err := c.build()
	if err != nil {
		cancel()
		c.logger.Error("channel start failed", ports.Err(err))
		_ = c.lifecycle.TransitionTo(app.StateFailed, err.Error())
		return err
	}

	if err := p.loader.Start(runCtx); err != nil {
		cancel()
		c.teardown(p, time.Second)
		_ = c.lifecycle.TransitionTo(app.StateFailed, err.Error())
		return err
	}
	c.publishBuffer(p.buffer)

	pluginCfg := PluginConfig{
		Endpoint:   c.config.Endpoint,
		RetryDir:   c.config.RetryDir,
		Logger:     c.logger,
		Channel:    c,
		RetryStore: c.store.Load(),
	}
	for i, pl := range c.plugins {
		if err := initializePlugin(runCtx, pl, pluginCfg); err != nil {
			c.logger.Error("plugin initialization failed",
				ports.String("plugin", pl.Name()),
				ports.Err(err))
			c.shutdownPlugins(context.Background(), c.plugins[:i])
			c.publishBuffer(nil)
			cancel()
			c.teardown(p, time.Second)
			_ = c.lifecycle.TransitionTo(app.StateFailed, "plugin init failed: "+pl.Name())
			return err
		}
		c.logger.Info("plugin initialized", ports.String("plugin", pl.Name()))
	}

	c.pipeline = p
	c.cancel = cancel

	return c.lifecycle.TransitionTo(app.StateRunning, "pipeline started")
}

// build constructs the output graph. Pools start immediately.
func (c *Channel) build() (*pipeline, error) {
	cfg := c.config

	store, err := fsadapter.NewFileSystemOutput(cfg.RetryDir, cfg.RetryDirCapacity, c.logger)
	if err != nil {
		return nil, fmt.Errorf("open retry directory: %w", err)
	}

	serializer, err := codec.NewSerializer(codec.Compression(cfg.Compression))
	if err != nil {
		_ = store.Stop(time.Second)
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	headers := map[string]string{"User-Agent": "telship/" + Version}
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if cfg.AuthKey != "" {
		headers["Authorization"] = "Bearer " + cfg.AuthKey
	}
	network := httpadapter.NewNetworkOutput(c.opts.httpClient, cfg.Endpoint, cfg.HTTPTimeout, headers)

	dispatcher, err := app.NewDispatcher(network, store, app.DispatcherConfig{
		NetworkPool:    cfg.NetworkPool.poolConfig("network"),
		FileSystemPool: cfg.FileSystemPool.poolConfig("filesystem"),
		Backoff:        app.NewBackoffPolicy(cfg.BackoffPolicy),
	}, c.logger, c.observer)
	if err != nil {
		_ = network.Stop(time.Second)
		_ = store.Stop(time.Second)
		return nil, err
	}

	transmitter, err := app.NewTransmitter(serializer, dispatcher, c.logger, c.observer)
	if err != nil {
		_ = dispatcher.Stop(time.Second)
		return nil, err
	}

	loader, err := app.NewLoader(dispatcher, cfg.LoaderWorkers, cfg.LoaderIdleInterval, c.logger, c.observer)
	if err != nil {
		_ = transmitter.Stop(time.Second)
		_ = dispatcher.Stop(time.Second)
		return nil, err
	}

	buffer := app.NewBuffer(c.batchSize(), cfg.FlushInterval, transmitter.SendNow, c.logger, c.observer)

	c.store.Store(store)
	return &pipeline{
		loader:      loader,
		buffer:      buffer,
		transmitter: transmitter,
		dispatcher:  dispatcher,
	}, nil
}

// Send accepts one serialized record. It never blocks on the network.
// Returns ErrNotRunning if the channel is not running and ErrNilRecord for a nil record.
func (c *Channel) Send(record []byte) error {
	buffer := c.buffer.Load()
	if buffer == nil {
		return ErrNotRunning
	}
	if err := buffer.Add(record); err != nil {
		return err
	}
	if c.developer.Load() {
		c.logger.Debug("record added", ports.Int("bytes", len(record)))
	}
	return nil
}

// Flush hands the pending records to the transmitter without waiting for the
// batch threshold or the flush timer.
func (c *Channel) Flush() {
	if buffer := c.buffer.Load(); buffer != nil {
		buffer.Flush()
	}
}

// Stop shuts the pipeline down within timeout: the loader stops, the buffer
// flushes what it holds, queued batches are serialized and dispatched, and
// transmissions the network could not take are persisted.
// Calling Stop on a channel that is not running is a no-op.
// Returns ErrShutdownTimeout if some stage did not finish in time.
func (c *Channel) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if !c.lifecycle.CanStop() {
		c.mu.Unlock()
		return nil
	}
	if err := c.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		c.mu.Unlock()
		return err
	}
	p, cancel := c.pipeline, c.cancel
	c.pipeline, c.cancel = nil, nil
	c.publishBuffer(nil)
	c.mu.Unlock()

	deadline := time.Now().Add(timeout)

	err := c.teardown(p, timeout)
	if cancel != nil {
		cancel()
	}

	ctx, cancelShutdown := context.WithDeadline(context.Background(), deadline)
	c.shutdownPlugins(ctx, c.plugins)
	cancelShutdown()

	if err != nil {
		_ = c.lifecycle.TransitionTo(app.StateFailed, "shutdown timeout")
		return err
	}
	_ = c.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	return nil
}

// teardown stops the pipeline stages in order, sharing one deadline.
func (c *Channel) teardown(p *pipeline, timeout time.Duration) error {
	if p == nil {
		return nil
	}
	deadline := time.Now().Add(timeout)
	remaining := func() time.Duration { return max(time.Until(deadline), time.Millisecond) }

	var errs []error
	if err := p.loader.Stop(remaining()); err != nil {
		errs = append(errs, fmt.Errorf("loader: %w", err))
	}
	p.buffer.Stop()
	if err := p.transmitter.Stop(remaining()); err != nil {
		errs = append(errs, fmt.Errorf("transmitter: %w", err))
	}
	if err := p.dispatcher.Stop(remaining()); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Channel) shutdownPlugins(ctx context.Context, plugins []Plugin) {
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := shutdownPlugin(ctx, p); err != nil {
			c.logger.Error("plugin shutdown failed",
				ports.String("plugin", p.Name()),
				ports.Err(err))
		} else {
			c.logger.Info("plugin shutdown complete", ports.String("plugin", p.Name()))
		}
	}
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (c *Channel) Status() State {
	return convertState(c.lifecycle.State())
}

// SetDeveloperMode switches between flushing every record on its own (and
// logging each one) and the configured batch size. Takes effect immediately.
func (c *Channel) SetDeveloperMode(enabled bool) {
	c.devMu.Lock()
	defer c.devMu.Unlock()

	if c.developer.Swap(enabled) == enabled {
		return
	}
	if buffer := c.buffer.Load(); buffer != nil {
		buffer.SetMaxItems(c.batchSize())
	}
	c.logger.Info("developer mode changed", ports.Bool("enabled", enabled))
}

// publishBuffer makes b the producer entry point, sized for the current mode.
func (c *Channel) publishBuffer(b *app.Buffer) {
	c.devMu.Lock()
	defer c.devMu.Unlock()

	if b != nil {
		b.SetMaxItems(c.batchSize())
	}
	c.buffer.Store(b)
}

// IsDeveloperMode reports whether developer mode is on.
func (c *Channel) IsDeveloperMode() bool {
	return c.developer.Load()
}

// Config returns the configuration with defaults applied.
func (c *Channel) Config() Config {
	return c.config
}

// Unregister removes the channel's collectors from the registerer passed to
// WithRegisterer.
func (c *Channel) Unregister() {
	if c.metrics != nil {
		c.metrics.Unregister(c.opts.registerer)
	}
}

func (c *Channel) batchSize() int {
	if c.developer.Load() {
		return app.DeveloperBatchSize
	}
	return c.config.MaxBatchSize
}

func (c *Channel) retryDirBytes() int64 {
	if s := c.store.Load(); s != nil {
		return s.Size()
	}
	return 0
}
