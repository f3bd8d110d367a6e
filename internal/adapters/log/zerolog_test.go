package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/spectools/wavemeter/internal/ports"
)

func TestZerolog_Fields(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerolog(zerolog.New(&buf))

	z.Warn("read failed",
		ports.String("resource", "GPIB0::4::INSTR"),
		ports.Int("failures", 3),
		ports.Float64("value", 532.0012),
		ports.Duration("timeout", 2*time.Second),
		ports.Err(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if got["level"] != "warn" {
		t.Errorf("level = %v, want warn", got["level"])
	}
	if got["message"] != "read failed" {
		t.Errorf("message = %v", got["message"])
	}
	if got["resource"] != "GPIB0::4::INSTR" {
		t.Errorf("resource = %v", got["resource"])
	}
	if got["failures"] != float64(3) {
		t.Errorf("failures = %v", got["failures"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v", got["error"])
	}
}

func TestZerolog_DisabledLevel(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerolog(zerolog.New(&buf).Level(zerolog.InfoLevel))

	z.Debug("hidden", ports.Int("n", 1))
	if buf.Len() != 0 {
		t.Errorf("debug output written at info level: %q", buf.String())
	}
}

func TestNoop_SharedWithPorts(t *testing.T) {
	var l ports.Logger = NewNoop()
	if _, ok := l.(ports.NopLogger); !ok {
		t.Fatalf("NewNoop() = %T, want ports.NopLogger", l)
	}
	l.Error("discarded", ports.Err(errors.New("boom")))
}
