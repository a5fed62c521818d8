package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// DefaultCapacity is the retry directory size above which new files are rejected.
const DefaultCapacity int64 = 10 << 20 // 10 MiB

// FileSystemOutput implements ports.TransmissionStore on a retry directory.
//
// Each transmission becomes one file named "<unix-nanos>-<uuid>.trn", so a
// lexical sort is creation order. Files are written as ".tmp" and renamed into
// place; FetchOldest claims a file by renaming it to ".lck" before reading it.
type FileSystemOutput struct {
	dir      string
	capacity int64
	logger   ports.Logger

	size      atomic.Int64
	lastStamp atomic.Int64

	mu       sync.RWMutex
	stopped  bool
	inflight sync.WaitGroup
}

// NewFileSystemOutput opens (creating if needed) the retry directory.
// Files left claimed or half-written by a previous process are recovered.
// A capacity of zero or less disables the size limit.
func NewFileSystemOutput(dir string, capacity int64, logger ports.Logger) (*FileSystemOutput, error) {
	if dir == "" {
		return nil, fmt.Errorf("retry directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create retry directory: %w", err)
	}

	o := &FileSystemOutput{
		dir:      dir,
		capacity: capacity,
		logger:   logger,
	}
	if err := o.recoverClaims(); err != nil {
		return nil, err
	}
	if err := o.rescan(); err != nil {
		return nil, err
	}
	return o, nil
}

// Dir returns the retry directory.
func (o *FileSystemOutput) Dir() string {
	return o.dir
}

// Size returns the tracked number of bytes in the retry directory.
func (o *FileSystemOutput) Size() int64 {
	return o.size.Load()
}

// Send persists the transmission as a new file.
func (o *FileSystemOutput) Send(t *domain.Transmission) domain.SendResult {
	o.mu.RLock()
	if o.stopped {
		o.mu.RUnlock()
		return domain.Rejected(domain.ErrOutputStopped)
	}
	o.inflight.Add(1)
	o.mu.RUnlock()
	defer o.inflight.Done()

	start := time.Now()

	data, err := encodeEnvelope(t, start)
	if err != nil {
		return domain.Failed(err, 0, false, time.Since(start))
	}

	if o.capacity > 0 && o.size.Load()+int64(len(data)) > o.capacity {
		// Files may have been removed by someone else since the last scan.
		if err := o.rescan(); err != nil {
			return domain.Failed(err, 0, false, time.Since(start))
		}
		if o.size.Load()+int64(len(data)) > o.capacity {
			return domain.Rejected(domain.ErrCapacityExceeded)
		}
	}

	base := filepath.Join(o.dir, o.nextName())
	tmp := base + tmpExt
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		_ = os.Remove(tmp)
		return domain.Failed(fmt.Errorf("write transmission: %w", err), 0, false, time.Since(start))
	}
	if err := os.Rename(tmp, base+fileExt); err != nil {
		_ = os.Remove(tmp)
		return domain.Failed(fmt.Errorf("commit transmission: %w", err), 0, false, time.Since(start))
	}

	o.size.Add(int64(len(data)))
	return domain.Persisted(time.Since(start))
}

// Files returns the committed transmission files, oldest first.
func (o *FileSystemOutput) Files() ([]FileInfo, error) {
	return List(o.dir)
}

// Remove deletes a committed transmission file and releases its bytes from
// the tracked size. It reports false, without error, when the file is already
// gone (claimed for replay or removed elsewhere).
func (o *FileSystemOutput) Remove(path string) (bool, error) {
	if filepath.Dir(path) != filepath.Clean(o.dir) || filepath.Ext(path) != fileExt {
		return false, fmt.Errorf("%s is not a transmission in %s", path, o.dir)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	o.size.Add(-info.Size())
	return true, nil
}

// FetchOldest claims, removes and decodes the oldest persisted transmission.
// Returns nil, nil when the directory holds none. Corrupt files are deleted
// and skipped.
func (o *FileSystemOutput) FetchOldest() (*domain.Transmission, error) {
	files, err := List(o.dir)
	if err != nil {
		return nil, err
	}

	for _, f := range files {
		claimed := strings.TrimSuffix(f.Path, fileExt) + claimExt
		if err := os.Rename(f.Path, claimed); err != nil {
			if errors.Is(err, iofs.ErrNotExist) {
				// Claimed by another loader or removed by cleanup.
				continue
			}
			return nil, fmt.Errorf("claim %s: %w", filepath.Base(f.Path), err)
		}

		data, readErr := os.ReadFile(claimed)
		if rmErr := os.Remove(claimed); rmErr != nil && !errors.Is(rmErr, iofs.ErrNotExist) {
			o.logger.Warn("failed to remove claimed transmission",
				ports.String("file", filepath.Base(claimed)),
				ports.Err(rmErr),
			)
		}
		o.size.Add(-f.Size)

		if readErr != nil {
			o.logger.Warn("failed to read persisted transmission",
				ports.String("file", filepath.Base(f.Path)),
				ports.Err(readErr),
			)
			continue
		}

		t, _, err := decodeEnvelope(data)
		if err != nil {
			o.logger.Warn("dropping corrupt persisted transmission",
				ports.String("file", filepath.Base(f.Path)),
				ports.Err(err),
			)
			continue
		}
		return t, nil
	}

	return nil, nil
}

// Stop rejects new writes and waits up to timeout for writes in progress.
func (o *FileSystemOutput) Stop(timeout time.Duration) error {
	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return nil
	}
	o.stopped = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return domain.ErrShutdownTimeout
	}
}

// nextName returns a file stem that sorts after every earlier one from this process.
func (o *FileSystemOutput) nextName() string {
	for {
		now := time.Now().UnixNano()
		last := o.lastStamp.Load()
		if now <= last {
			now = last + 1
		}
		if o.lastStamp.CompareAndSwap(last, now) {
			return fmt.Sprintf("%020d-%s", now, uuid.NewString())
		}
	}
}

// recoverClaims restores files claimed by a loader that died before deleting them
// and removes writes that never reached their final name.
func (o *FileSystemOutput) recoverClaims() error {
	entries, err := os.ReadDir(o.dir)
	if err != nil {
		return fmt.Errorf("read retry directory: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(o.dir, e.Name())
		switch filepath.Ext(e.Name()) {
		case claimExt:
			restored := strings.TrimSuffix(path, claimExt) + fileExt
			if err := os.Rename(path, restored); err != nil {
				return fmt.Errorf("restore claimed transmission: %w", err)
			}
			o.logger.Info("restored claimed transmission", ports.String("file", filepath.Base(restored)))
		case tmpExt:
			if err := os.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
				return fmt.Errorf("remove partial transmission: %w", err)
			}
		}
	}
	return nil
}

func (o *FileSystemOutput) rescan() error {
	files, err := List(o.dir)
	if err != nil {
		return err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	o.size.Store(total)
	return nil
}
