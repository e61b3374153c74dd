package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)

	logger.Log(t.Context(), LevelTrace, "batch loaded", "index", 3)

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("TRACE-Level fehlt in %q", out)
	}
	if !strings.Contains(out, "source=logutil_test.go:") {
		t.Errorf("Quelle sollte ohne Pfad erscheinen: %q", out)
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Debug-Meldung sollte gefiltert werden: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("Info-Meldung fehlt: %q", out)
	}
}
