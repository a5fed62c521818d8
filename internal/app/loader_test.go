package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bft-labs/telship/internal/domain"
)

type stubSource struct {
	store *memStore
	delay atomic.Int64
	fetch atomic.Int64

	mu         sync.Mutex
	dispatched []*domain.Transmission
}

func (s *stubSource) FetchOldest() (*domain.Transmission, error) {
	s.fetch.Add(1)
	return s.store.FetchOldest()
}

func (s *stubSource) Dispatch(t *domain.Transmission) domain.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = append(s.dispatched, t)
	return domain.Queued()
}

func (s *stubSource) RetryDelay() time.Duration {
	return time.Duration(s.delay.Load())
}

func (s *stubSource) Dispatched() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dispatched)
}

func TestNewLoader_ValidatesWorkers(t *testing.T) {
	src := &stubSource{store: &memStore{}}
	tests := []struct {
		workers int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{MaxLoaderWorkers, false},
		{MaxLoaderWorkers + 1, true},
	}

	for _, tt := range tests {
		_, err := NewLoader(src, tt.workers, 0, mockLogger{}, nil)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewLoader(workers=%d) error = %v, wantErr %v", tt.workers, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("NewLoader(workers=%d) error = %v, want ErrInvalidConfig", tt.workers, err)
		}
	}
}

func TestLoader_DrainsStore(t *testing.T) {
	store := &memStore{}
	for _, body := range []string{"a", "b", "c"} {
		store.Send(newTransmission(t, body))
	}
	src := &stubSource{store: store}
	obs := &recordingObserver{}

	l, err := NewLoader(src, 3, 10*time.Millisecond, mockLogger{}, obs)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	waitFor(t, 2*time.Second, "replay", func() bool { return src.Dispatched() == 3 })

	if err := l.Stop(time.Second); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d transmissions, want 0", store.Len())
	}
	if got := obs.replayed.Load(); got != 3 {
		t.Errorf("Replayed called %d times, want 3", got)
	}
}

func TestLoader_WaitsOutRetryDelay(t *testing.T) {
	store := &memStore{}
	store.Send(newTransmission(t, "a"))
	src := &stubSource{store: store}
	src.delay.Store(int64(time.Hour))

	l, err := NewLoader(src, 1, 10*time.Millisecond, mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	_ = l.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	if n := src.fetch.Load(); n != 0 {
		t.Errorf("fetched %d times during backoff, want 0", n)
	}

	start := time.Now()
	if err := l.Stop(time.Second); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Stop() took %v while backing off", elapsed)
	}
}

func TestLoader_StartStopSemantics(t *testing.T) {
	src := &stubSource{store: &memStore{}}
	l, err := NewLoader(src, 1, 10*time.Millisecond, mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if err := l.Stop(time.Second); err != nil {
		t.Errorf("Stop() before Start error = %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := l.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if err := l.Stop(time.Second); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := l.Stop(time.Second); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestLoader_ParentContextCancels(t *testing.T) {
	src := &stubSource{store: &memStore{}}
	l, err := NewLoader(src, 2, 10*time.Millisecond, mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_ = l.Start(ctx)
	cancel()

	select {
	case <-l.done:
	case <-time.After(time.Second):
		t.Fatal("workers did not exit after parent cancel")
	}
	_ = l.Stop(time.Second)
}
