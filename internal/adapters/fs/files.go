package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	fileExt  = ".trn"
	tmpExt   = ".tmp"
	claimExt = ".lck"
)

// FileInfo describes one persisted transmission file.
type FileInfo struct {
	Path      string
	Size      int64
	CreatedAt time.Time
}

// List returns the committed transmission files in dir, oldest first.
// In-progress and claimed files are not included.
func List(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read retry directory: %w", err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != fileExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Claimed between ReadDir and Info.
			continue
		}
		files = append(files, FileInfo{
			Path:      filepath.Join(dir, e.Name()),
			Size:      info.Size(),
			CreatedAt: createdAt(e.Name(), info.ModTime()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return filepath.Base(files[i].Path) < filepath.Base(files[j].Path)
	})
	return files, nil
}

// createdAt parses the timestamp prefix of a file name, falling back to the
// modification time for names this package did not produce.
func createdAt(name string, fallback time.Time) time.Time {
	stamp, _, ok := strings.Cut(name, "-")
	if !ok {
		return fallback
	}
	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return fallback
	}
	return time.Unix(0, nanos)
}
