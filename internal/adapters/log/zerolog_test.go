package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/telship/internal/ports"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewZerologAdapterWithLogger(zerolog.New(&buf))

	adapter.Info("dispatched",
		ports.String("status", "delivered"),
		ports.Int("records", 3),
		ports.Int64("bytes", 1024),
		ports.Bool("developer_mode", true),
		ports.Duration("took", time.Second),
		ports.Err(errors.New("boom")),
		ports.Any("codes", []int{200}),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}

	if got["message"] != "dispatched" {
		t.Errorf("message = %v, want dispatched", got["message"])
	}
	if got["level"] != "info" {
		t.Errorf("level = %v, want info", got["level"])
	}
	if got["status"] != "delivered" {
		t.Errorf("status = %v, want delivered", got["status"])
	}
	if got["records"] != float64(3) {
		t.Errorf("records = %v, want 3", got["records"])
	}
	if got["bytes"] != float64(1024) {
		t.Errorf("bytes = %v, want 1024", got["bytes"])
	}
	if got["developer_mode"] != true {
		t.Errorf("developer_mode = %v, want true", got["developer_mode"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v, want boom", got["error"])
	}
	if _, ok := got["codes"]; !ok {
		t.Error("codes field missing")
	}
}

func TestZerologAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewZerologAdapterWithLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	adapter.Debug("hidden", ports.String("k", "v"))
	if buf.Len() != 0 {
		t.Errorf("debug output written at info level: %s", buf.String())
	}

	adapter.Warn("shown")
	if buf.Len() == 0 {
		t.Error("warn output missing")
	}
}

func TestNewConsoleLogger_Verbose(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(&buf, true)
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}

	quiet := NewConsoleLogger(&buf, false)
	if quiet.GetLevel() != zerolog.InfoLevel {
		t.Errorf("level = %v, want info", quiet.GetLevel())
	}
}
