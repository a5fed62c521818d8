// Package codec builds compressed Transmissions from batches of serialized records.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bft-labs/telship/internal/domain"
)

// Compression names a batch compression algorithm.
// The name doubles as the HTTP Content-Encoding value.
type Compression string

const (
	// Gzip is the default compression.
	Gzip Compression = "gzip"
	// Zstd uses zstd at the default level.
	Zstd Compression = "zstd"
	// LZ4 uses the lz4 frame format.
	LZ4 Compression = "lz4"
)

var newline = []byte{'\n'}

// ParseCompression maps a config string to a Compression.
// Empty input selects Gzip. Matching is case-insensitive.
func ParseCompression(name string) (Compression, error) {
	switch Compression(strings.ToLower(strings.TrimSpace(name))) {
	case "", Gzip:
		return Gzip, nil
	case Zstd:
		return Zstd, nil
	case LZ4:
		return LZ4, nil
	default:
		return "", fmt.Errorf("unknown compression %q", name)
	}
}

// Serializer implements ports.BatchSerializer.
// Records are joined with a single newline (no trailing separator) and the
// whole stream is compressed once.
type Serializer struct {
	compression Compression
}

// NewSerializer creates a serializer for the given compression.
func NewSerializer(c Compression) (*Serializer, error) {
	parsed, err := ParseCompression(string(c))
	if err != nil {
		return nil, err
	}
	return &Serializer{compression: parsed}, nil
}

// Compression returns the configured algorithm.
func (s *Serializer) Compression() Compression {
	return s.compression
}

// Serialize implements ports.BatchSerializer.
func (s *Serializer) Serialize(records [][]byte) (*domain.Transmission, error) {
	if len(records) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	var buf bytes.Buffer
	w, err := s.writer(&buf)
	if err != nil {
		return nil, err
	}

	for i, rec := range records {
		if i > 0 {
			if _, err := w.Write(newline); err != nil {
				_ = w.Close()
				return nil, fmt.Errorf("write separator: %w", err)
			}
		}
		if _, err := w.Write(rec); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("write record %d: %w", i, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close %s stream: %w", s.compression, err)
	}

	return domain.NewTransmission(buf.Bytes(), domain.ContentTypeJSONStream, string(s.compression))
}

func (s *Serializer) writer(dst io.Writer) (io.WriteCloser, error) {
	switch s.compression {
	case Zstd:
		enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		return enc, nil
	case LZ4:
		return lz4.NewWriter(dst), nil
	default:
		return gzip.NewWriter(dst), nil
	}
}

// Decode reverses Serialize: it decompresses content according to encoding
// and splits it back into records.
func Decode(content []byte, encoding string) ([][]byte, error) {
	c, err := ParseCompression(encoding)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	switch c {
	case Zstd:
		dec, err := zstd.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer dec.Close()
		r = dec
	case LZ4:
		r = lz4.NewReader(bytes.NewReader(content))
	default:
		gr, err := gzip.NewReader(bytes.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		defer gr.Close()
		r = gr
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", c, err)
	}
	return bytes.Split(raw, newline), nil
}
