package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func newJSON(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := NewWithWriter(&Config{Level: level, Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	return l, &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var m map[string]interface{}
	if err := json.Unmarshal(lines[len(lines)-1], &m); err != nil {
		t.Fatalf("decode %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestFieldsAreTyped(t *testing.T) {
	l, buf := newJSON(t, "debug")
	l.Info("replay finished",
		String("symbol", "SPY"),
		Int("trades", 3),
		Float64("cash", 100250.5),
		Bool("halted", true),
		Duration("elapsed", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)
	m := lastLine(t, buf)
	if m["message"] != "replay finished" || m["level"] != "info" {
		t.Fatalf("unexpected envelope %v", m)
	}
	if m["symbol"] != "SPY" || m["trades"] != float64(3) || m["cash"] != 100250.5 || m["halted"] != true {
		t.Fatalf("unexpected fields %v", m)
	}
	if m["elapsed"] != float64(1500) || m["error"] != "boom" {
		t.Fatalf("unexpected duration/error %v", m)
	}
}

func TestWithAndLevels(t *testing.T) {
	l, buf := newJSON(t, "WARN")
	child := l.With(String("run_id", "r1"), Error(nil))
	child.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn level: %s", buf.String())
	}
	child.Warn("entry skipped", String("reason", "zero_size"))
	m := lastLine(t, buf)
	if m["run_id"] != "r1" || m["reason"] != "zero_size" {
		t.Fatalf("child fields missing: %v", m)
	}
	if _, ok := m["error"]; ok {
		t.Fatalf("nil error must not be logged: %v", m)
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := NewWithWriter(&Config{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected invalid level error")
	}
	Nop().Error("discarded", String("k", "v"))
}
