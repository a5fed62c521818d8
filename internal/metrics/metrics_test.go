package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bft-labs/telship/internal/app"
	"github.com/bft-labs/telship/internal/domain"
)

func TestMetrics_Observer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.RecordAdded()
	m.RecordAdded()
	m.BatchFlushed(2)
	m.Sent(nil, domain.Delivered(200, 15*time.Millisecond))
	m.Sent(nil, domain.Failed(errors.New("down"), 503, true, time.Millisecond))
	m.Persisted(nil)
	m.Replayed(nil)
	m.Dropped(nil, app.DropQueueFull, nil)
	m.Dropped(nil, app.DropQueueFull, nil)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"records_added", m.recordsAdded, 2},
		{"batches_flushed", m.batchesFlushed, 1},
		{"sent delivered", m.sent.WithLabelValues("delivered"), 1},
		{"sent failed", m.sent.WithLabelValues("failed"), 1},
		{"persisted", m.persisted, 1},
		{"replayed", m.replayed, 1},
		{"dropped queue_full", m.dropped.WithLabelValues(app.DropQueueFull), 2},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(m.sendDuration); n != 1 {
		t.Errorf("send_duration series = %d, want 1", n)
	}
}

func TestMetrics_RetryDirGauge(t *testing.T) {
	size := int64(4096)
	m, err := New(nil, Options{RetryDirBytes: func() int64 { return size }})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := testutil.ToFloat64(m.retryDirBytes); got != 4096 {
		t.Errorf("retry_dir_bytes = %v, want 4096", got)
	}
	size = 0
	if got := testutil.ToFloat64(m.retryDirBytes); got != 0 {
		t.Errorf("retry_dir_bytes = %v, want 0", got)
	}
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg, Options{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = New(reg, Options{})
	if !IsAlreadyRegistered(err) {
		t.Fatalf("second New() error = %v, want AlreadyRegisteredError", err)
	}

	first.Unregister(reg)
	if _, err := New(reg, Options{}); err != nil {
		t.Errorf("New() after Unregister error = %v", err)
	}
}

func TestNew_ConstLabelsSeparateChannels(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg, Options{ConstLabels: prometheus.Labels{"channel": "a"}}); err != nil {
		t.Fatalf("New(a) error = %v", err)
	}
	if _, err := New(reg, Options{ConstLabels: prometheus.Labels{"channel": "b"}}); err != nil {
		t.Errorf("New(b) error = %v", err)
	}
}
