package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/workerpool"
)

var tinyPool = workerpool.Config{
	Name:        "test",
	MinWorkers:  1,
	MaxWorkers:  1,
	QueueSize:   1,
	IdleTimeout: time.Second,
}

type resultCollector struct {
	mu      sync.Mutex
	results []domain.SendResult
}

func (c *resultCollector) collect(_ *domain.Transmission, res domain.SendResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, res)
}

func (c *resultCollector) Results() []domain.SendResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SendResult(nil), c.results...)
}

func TestActiveOutput_SendQueuesAndReports(t *testing.T) {
	out := &mockOutput{}
	col := &resultCollector{}
	a, err := NewActiveOutput(out, DefaultNetworkPool, col.collect, mockLogger{})
	if err != nil {
		t.Fatalf("NewActiveOutput() error = %v", err)
	}
	defer a.Stop(time.Second)

	res := a.Send(newTransmission(t, "x"))
	if res.Status != domain.StatusQueued {
		t.Fatalf("Send() status = %v, want queued", res.Status)
	}

	waitFor(t, time.Second, "result", func() bool { return len(col.Results()) == 1 })
	if got := col.Results()[0]; got.Status != domain.StatusDelivered {
		t.Errorf("reported status = %v, want delivered", got.Status)
	}
}

func TestActiveOutput_PanicBecomesFailure(t *testing.T) {
	out := &mockOutput{result: func(*domain.Transmission) domain.SendResult { panic("boom") }}
	col := &resultCollector{}
	a, err := NewActiveOutput(out, tinyPool, col.collect, mockLogger{})
	if err != nil {
		t.Fatalf("NewActiveOutput() error = %v", err)
	}
	defer a.Stop(time.Second)

	a.Send(newTransmission(t, "x"))

	waitFor(t, time.Second, "result", func() bool { return len(col.Results()) == 1 })
	got := col.Results()[0]
	if got.Status != domain.StatusFailed || got.Err == nil {
		t.Errorf("reported %+v, want failed with error", got)
	}

	// The worker survives the panic.
	out.mu.Lock()
	out.result = nil
	out.mu.Unlock()
	a.Send(newTransmission(t, "y"))
	waitFor(t, time.Second, "second result", func() bool { return len(col.Results()) == 2 })
}

func TestActiveOutput_FullQueueRejects(t *testing.T) {
	out := &mockOutput{block: make(chan struct{})}
	a, err := NewActiveOutput(out, tinyPool, nil, mockLogger{})
	if err != nil {
		t.Fatalf("NewActiveOutput() error = %v", err)
	}

	// Capacity is one running plus one queued; submit more than that.
	var rejected int
	for i := 0; i < tinyPool.QueueSize+2; i++ {
		res := a.Send(newTransmission(t, "x"))
		if res.Status == domain.StatusRejected {
			if !errors.Is(res.Err, domain.ErrQueueFull) {
				t.Errorf("rejection error = %v, want ErrQueueFull", res.Err)
			}
			rejected++
		}
	}
	close(out.block)
	_ = a.Stop(time.Second)

	if rejected == 0 {
		t.Error("no send was rejected with a full queue")
	}
}

func TestActiveOutput_StopStopsWrappedFirst(t *testing.T) {
	out := &mockOutput{block: make(chan struct{})}
	col := &resultCollector{}
	a, err := NewActiveOutput(out, tinyPool, col.collect, mockLogger{})
	if err != nil {
		t.Fatalf("NewActiveOutput() error = %v", err)
	}

	a.Send(newTransmission(t, "x"))
	close(out.block)

	if err := a.Stop(time.Second); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !out.stopped.Load() {
		t.Error("wrapped output was not stopped")
	}
	if res := a.Send(newTransmission(t, "late")); res.Status != domain.StatusRejected {
		t.Errorf("Send() after Stop status = %v, want rejected", res.Status)
	}
	if got := len(col.Results()); got != 1 {
		t.Errorf("got %d results, want 1", got)
	}
}
