package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	fsadapter "github.com/bft-labs/telship/internal/adapters/fs"
	httpadapter "github.com/bft-labs/telship/internal/adapters/http"
	"github.com/bft-labs/telship/internal/codec"
)

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	files, err := fsadapter.List(dir)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	return len(files)
}

// An endpoint that is down leaves exactly one file behind; once it recovers
// the loader picks the file up and delivers it.
func TestPipeline_FailedSendPersistsThenReplays(t *testing.T) {
	var (
		healthy atomic.Bool
		hits    atomic.Int64
		okHits  atomic.Int64
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		okHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	dir := t.TempDir()
	store, err := fsadapter.NewFileSystemOutput(dir, 0, mockLogger{})
	if err != nil {
		t.Fatalf("NewFileSystemOutput() error = %v", err)
	}
	net := httpadapter.NewNetworkOutput(ts.Client(), ts.URL, time.Second, nil)

	cfg := DefaultDispatcherConfig()
	cfg.Backoff = FixedSchedule{10 * time.Millisecond}
	d, err := NewDispatcher(net, store, cfg, mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	defer d.Stop(time.Second)

	ser, err := codec.NewSerializer(codec.Gzip)
	if err != nil {
		t.Fatalf("NewSerializer() error = %v", err)
	}
	tr, err := ser.Serialize([][]byte{[]byte(`{"n":1}`)})
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	d.Dispatch(tr)
	waitFor(t, 2*time.Second, "persisted file", func() bool { return countFiles(t, dir) == 1 })

	time.Sleep(50 * time.Millisecond)
	if n := countFiles(t, dir); n != 1 {
		t.Fatalf("retry directory holds %d files, want 1", n)
	}

	healthy.Store(true)
	l, err := NewLoader(d, 1, 10*time.Millisecond, mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer l.Stop(time.Second)

	waitFor(t, 2*time.Second, "redelivery", func() bool { return okHits.Load() == 1 })
	waitFor(t, time.Second, "empty retry directory", func() bool { return countFiles(t, dir) == 0 })

	if hits.Load() != 2 {
		t.Errorf("endpoint received %d requests, want 2", hits.Load())
	}
}

// With a one-slot network queue, a burst of dispatches overflows to disk
// rather than blocking or panicking.
func TestPipeline_BurstOverflowsToDisk(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	defer unblock()

	dir := t.TempDir()
	store, err := fsadapter.NewFileSystemOutput(dir, 0, mockLogger{})
	if err != nil {
		t.Fatalf("NewFileSystemOutput() error = %v", err)
	}
	net := httpadapter.NewNetworkOutput(ts.Client(), ts.URL, 5*time.Second, nil)

	cfg := DefaultDispatcherConfig()
	cfg.NetworkPool = tinyPool
	d, err := NewDispatcher(net, store, cfg, mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	for i := 0; i < tinyPool.QueueSize+3; i++ {
		d.Dispatch(newTransmission(t, "burst"))
	}
	waitFor(t, 2*time.Second, "overflow files", func() bool { return countFiles(t, dir) >= 1 })

	unblock()
	if err := d.Stop(2 * time.Second); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
