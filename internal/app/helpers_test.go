package app

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

// mockOutput is a TransmissionOutput whose behavior is set per test.
type mockOutput struct {
	mu      sync.Mutex
	sent    []*domain.Transmission
	result  func(t *domain.Transmission) domain.SendResult
	block   chan struct{}
	stopped atomic.Bool
}

func (m *mockOutput) Send(t *domain.Transmission) domain.SendResult {
	if m.block != nil {
		<-m.block
	}
	if m.stopped.Load() {
		return domain.Rejected(domain.ErrOutputStopped)
	}
	m.mu.Lock()
	m.sent = append(m.sent, t)
	result := m.result
	m.mu.Unlock()
	if result != nil {
		return result(t)
	}
	return domain.Delivered(200, 0)
}

func (m *mockOutput) Stop(time.Duration) error {
	m.stopped.Store(true)
	return nil
}

func (m *mockOutput) Sent() []*domain.Transmission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Transmission(nil), m.sent...)
}

// memStore is an in-memory TransmissionStore.
type memStore struct {
	mockOutput
	mu      sync.Mutex
	pending []*domain.Transmission
	full    bool
}

func (s *memStore) Send(t *domain.Transmission) domain.SendResult {
	if s.stopped.Load() {
		return domain.Rejected(domain.ErrOutputStopped)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return domain.Rejected(domain.ErrCapacityExceeded)
	}
	s.pending = append(s.pending, t)
	return domain.Persisted(0)
}

func (s *memStore) FetchOldest() (*domain.Transmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	return t, nil
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// recordingObserver counts what the pipeline reports.
type recordingObserver struct {
	added     atomic.Int64
	flushed   atomic.Int64
	sent      atomic.Int64
	delivered atomic.Int64
	persisted atomic.Int64
	replayed  atomic.Int64

	mu      sync.Mutex
	dropped []string
}

func (o *recordingObserver) RecordAdded() {
	o.added.Add(1)
}

func (o *recordingObserver) BatchFlushed(int) {
	o.flushed.Add(1)
}

func (o *recordingObserver) Persisted(*domain.Transmission) {
	o.persisted.Add(1)
}

func (o *recordingObserver) Replayed(*domain.Transmission) {
	o.replayed.Add(1)
}

func (o *recordingObserver) Sent(_ *domain.Transmission, res domain.SendResult) {
	o.sent.Add(1)
	if res.Status == domain.StatusDelivered {
		o.delivered.Add(1)
	}
}

func (o *recordingObserver) Dropped(_ *domain.Transmission, reason string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped = append(o.dropped, reason)
}

func (o *recordingObserver) Drops() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.dropped...)
}

// fakeSerializer joins records without compressing them.
type fakeSerializer struct {
	fail bool
}

func (f fakeSerializer) Serialize(records [][]byte) (*domain.Transmission, error) {
	if f.fail {
		return nil, errors.New("compress failed")
	}
	var out []byte
	for i, r := range records {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, r...)
	}
	return domain.NewTransmission(out, domain.ContentTypeJSONStream, domain.EncodingGzip)
}

func newTransmission(t *testing.T, body string) *domain.Transmission {
	t.Helper()
	tr, err := domain.NewTransmission([]byte(body), domain.ContentTypeJSONStream, domain.EncodingGzip)
	if err != nil {
		t.Fatalf("NewTransmission() error = %v", err)
	}
	return tr
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
