package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("should not appear")
	l.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below level, got %q", buf.String())
	}

	l.Warn("heads up")
	if !strings.Contains(buf.String(), "[WARN] heads up") {
		t.Fatalf("missing warn line, got %q", buf.String())
	}
}

func TestWithComponentAndField(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.WithComponent("monitor").WithField("watchpoint_id", 7).Info("fired")
	out := buf.String()
	if !strings.Contains(out, "component=monitor") {
		t.Fatalf("missing component field, got %q", out)
	}
	if !strings.Contains(out, "watchpoint_id=7") {
		t.Fatalf("missing watchpoint_id field, got %q", out)
	}
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	_ = parent.WithField("k", "v")

	parent.Info("plain")
	if strings.Contains(buf.String(), "k=v") {
		t.Fatalf("parent logger was mutated by WithField, got %q", buf.String())
	}
}

func TestInlineArgsAppendToFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf}).WithComponent("device")

	l.Error("create failed", "name", "thermostat", "code", -100)
	out := buf.String()
	if !strings.Contains(out, "component=device") || !strings.Contains(out, "name=thermostat") || !strings.Contains(out, "code=-100") {
		t.Fatalf("fields missing from output: %q", out)
	}
}

func TestDefaultLoggerLazyInit(t *testing.T) {
	SetDefault(nil)
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}
}
