package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestLeakCheck_Pipeline(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := &memStore{}
	d, err := NewDispatcher(&mockOutput{result: failing(true, 503)}, store, DefaultDispatcherConfig(), mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	tx, err := NewTransmitter(fakeSerializer{}, d, mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewTransmitter() error = %v", err)
	}
	b := NewBuffer(2, 10*time.Millisecond, tx.SendNow, mockLogger{}, nil)
	l, err := NewLoader(d, 2, 5*time.Millisecond, mockLogger{}, nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		_ = b.Add([]byte("x"))
	}
	time.Sleep(30 * time.Millisecond)

	if err := l.Stop(time.Second); err != nil {
		t.Errorf("loader Stop() error = %v", err)
	}
	b.Stop()
	if err := tx.Stop(time.Second); err != nil {
		t.Errorf("transmitter Stop() error = %v", err)
	}
	if err := d.Stop(time.Second); err != nil {
		t.Errorf("dispatcher Stop() error = %v", err)
	}
}
