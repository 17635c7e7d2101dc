package utils

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestHostLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	SetLoggerJSON(&buf)
	defer SetLoggerConsole(false)

	l := HostLogger(3)
	l.Info().Msg("hello " + V(42))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not a JSON line: %q: %v", buf.String(), err)
	}
	if rec["host"] != float64(3) || rec["message"] != "hello 42" || rec["level"] != "info" {
		t.Fatalf("unexpected record %v", rec)
	}
	if _, ok := rec["caller"]; !ok {
		t.Fatalf("no caller in %v", rec)
	}
}

func TestFormat(t *testing.T) {
	if F("%05.1f", 3.14159) != "003.1" {
		t.Fatalf("got %s", F("%05.1f", 3.14159))
	}
	ColourDisabled = true
	defer func() { ColourDisabled = false }()
	if colorize("x", colorRed) != "x" {
		t.Fatalf("colour not disabled")
	}
}
