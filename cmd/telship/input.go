package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// maxRecordSize bounds a single NDJSON line.
const maxRecordSize = 4 << 20

// inputStats summarizes one pass over the inputs.
type inputStats struct {
	Sent    int
	Invalid int
}

// readRecords sends each non-blank line of r as one record. Lines that are
// not valid JSON are counted and skipped. It stops at EOF, on a send error,
// or when ctx is done.
func readRecords(ctx context.Context, r io.Reader, send func([]byte) error) (inputStats, error) {
	var stats inputStats

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxRecordSize)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			stats.Invalid++
			continue
		}
		// The scanner reuses its buffer.
		record := bytes.Clone(line)
		if err := send(record); err != nil {
			return stats, err
		}
		stats.Sent++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read input: %w", err)
	}
	return stats, nil
}

// readInputs reads each path in order, or stdin when paths is empty or "-".
func readInputs(ctx context.Context, paths []string, stdin io.Reader, send func([]byte) error) (inputStats, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}

	var total inputStats
	for _, p := range paths {
		var (
			stats inputStats
			err   error
		)
		if p == "-" {
			stats, err = readRecords(ctx, stdin, send)
		} else {
			stats, err = readFile(ctx, p, send)
		}
		total.Sent += stats.Sent
		total.Invalid += stats.Invalid
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func readFile(ctx context.Context, path string, send func([]byte) error) (inputStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return inputStats{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return readRecords(ctx, f, send)
}
