package telship_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/telship/pkg/telship"
)

// trackingPlugin records initialization and shutdown order.
type trackingPlugin struct {
	telship.BasePlugin
	order     *callOrder
	initError error
	cfg       telship.PluginConfig
	status    telship.State
}

type callOrder struct {
	mu       sync.Mutex
	init     []string
	shutdown []string
}

func (o *callOrder) Init() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.init...)
}

func (o *callOrder) Shutdown() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.shutdown...)
}

func newTrackingPlugin(name string, order *callOrder) *trackingPlugin {
	return &trackingPlugin{BasePlugin: telship.BasePlugin{PluginName: name}, order: order}
}

func (p *trackingPlugin) Initialize(ctx context.Context, cfg telship.PluginConfig) error {
	if p.initError != nil {
		return p.initError
	}
	p.order.mu.Lock()
	defer p.order.mu.Unlock()
	p.order.init = append(p.order.init, p.Name())
	p.cfg = cfg
	p.status = cfg.Channel.Status()
	return nil
}

func (p *trackingPlugin) Shutdown(ctx context.Context) error {
	p.order.mu.Lock()
	defer p.order.mu.Unlock()
	p.order.shutdown = append(p.order.shutdown, p.Name())
	return nil
}

// panicPlugin panics during initialization or shutdown.
type panicPlugin struct {
	telship.BasePlugin
	panicOnInit     bool
	panicOnShutdown bool
}

func (p *panicPlugin) Initialize(ctx context.Context, cfg telship.PluginConfig) error {
	if p.panicOnInit {
		panic("intentional panic during initialization")
	}
	return nil
}

func (p *panicPlugin) Shutdown(ctx context.Context) error {
	if p.panicOnShutdown {
		panic("intentional panic during shutdown")
	}
	return nil
}

// modePlugin flips developer mode from Initialize, the way a config reload would.
type modePlugin struct {
	telship.BasePlugin
}

func (p *modePlugin) Initialize(ctx context.Context, cfg telship.PluginConfig) error {
	cfg.Channel.SetDeveloperMode(true)
	return nil
}

func TestPlugin_InitializationOrder(t *testing.T) {
	_, ts := newIngest(t)
	order := &callOrder{}

	p1 := newTrackingPlugin("plugin1", order)
	p2 := newTrackingPlugin("plugin2", order)
	p3 := newTrackingPlugin("plugin3", order)

	cfg := testConfig(t, ts.URL)
	ch, err := telship.New(cfg,
		telship.WithPlugin(p1),
		telship.WithPlugin(p2),
		telship.WithPlugin(p3),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := ch.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := strings.Join(order.Init(), ","); got != "plugin1,plugin2,plugin3" {
		t.Errorf("init order = %v, want plugin1,plugin2,plugin3", got)
	}
	if p1.cfg.RetryDir != cfg.RetryDir || p1.cfg.Endpoint != cfg.Endpoint {
		t.Errorf("PluginConfig = %+v, want retry dir and endpoint of the channel", p1.cfg)
	}
	if p1.status != telship.StateStarting {
		t.Errorf("Status() during Initialize = %v, want Starting", p1.status)
	}

	if err := ch.Stop(5 * time.Second); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if got := strings.Join(order.Shutdown(), ","); got != "plugin3,plugin2,plugin1" {
		t.Errorf("shutdown order = %v, want plugin3,plugin2,plugin1", got)
	}
}

func TestPlugin_InitializationFailure_PreventsStart(t *testing.T) {
	_, ts := newIngest(t)
	order := &callOrder{}

	p1 := newTrackingPlugin("plugin1", order)
	p2 := newTrackingPlugin("plugin2", order)
	p2.initError = errors.New("intentional init failure")
	p3 := newTrackingPlugin("plugin3", order)

	ch, err := telship.New(testConfig(t, ts.URL),
		telship.WithPlugin(p1),
		telship.WithPlugin(p2),
		telship.WithPlugin(p3),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := ch.Start(context.Background()); !errors.Is(err, p2.initError) {
		t.Fatalf("Start() error = %v, want plugin2 failure", err)
	}
	if ch.Status() != telship.StateFailed {
		t.Errorf("Status() = %v, want Failed", ch.Status())
	}
	if got := strings.Join(order.Init(), ","); got != "plugin1" {
		t.Errorf("init order = %v, want plugin1", got)
	}
	if got := strings.Join(order.Shutdown(), ","); got != "plugin1" {
		t.Errorf("shutdown = %v, want plugin1 (only initialized plugins)", got)
	}
	if err := ch.Send([]byte(`{}`)); !errors.Is(err, telship.ErrNotRunning) {
		t.Errorf("Send() after failed start error = %v, want ErrNotRunning", err)
	}
}

func TestPlugin_PanicDuringInitialize(t *testing.T) {
	_, ts := newIngest(t)
	p := &panicPlugin{BasePlugin: telship.BasePlugin{PluginName: "panicky"}, panicOnInit: true}

	ch, err := telship.New(testConfig(t, ts.URL), telship.WithPlugin(p))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = ch.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panicky") {
		t.Errorf("Start() error = %v, want panic converted to error", err)
	}
}

func TestPlugin_PanicDuringShutdown(t *testing.T) {
	_, ts := newIngest(t)
	logger := &testLogger{}
	p := &panicPlugin{BasePlugin: telship.BasePlugin{PluginName: "panicky"}, panicOnShutdown: true}

	ch := startChannel(t, testConfig(t, ts.URL), telship.WithPlugin(p), telship.WithLogger(logger))
	if err := ch.Stop(5 * time.Second); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if logger.Count("[ERROR] plugin shutdown failed") != 1 {
		t.Error("shutdown panic was not logged")
	}
	if ch.Status() != telship.StateStopped {
		t.Errorf("Status() = %v, want Stopped", ch.Status())
	}
}

func TestPlugin_ControlsDeveloperMode(t *testing.T) {
	in, ts := newIngest(t)

	cfg := testConfig(t, ts.URL)
	cfg.FlushInterval = time.Hour
	ch := startChannel(t, cfg, telship.WithPlugin(&modePlugin{BasePlugin: telship.BasePlugin{PluginName: "mode"}}))

	if !ch.IsDeveloperMode() {
		t.Fatal("IsDeveloperMode() = false, want true")
	}
	_ = ch.Send([]byte(`{}`))
	waitFor(t, 2*time.Second, "immediate flush", func() bool { return len(in.Batches()) == 1 })
}
