package logging

import (
	"bytes"
	"strings"
	"testing"
)

// Compile-time interface conformance.
var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = (*HarnessLogger)(nil)
	_ Logger = NoOpLogger{}
)

func TestHarnessLogger_AttachesContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})

	logger.WithComponent("executor").WithTask("task-1", "ctx-1").Info("starting task execution", "caller", "alice")

	out := buf.String()
	for _, want := range []string{"starting task execution", "executor", "task-1", "ctx-1", "alice"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestHarnessLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	logger.Info("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("info should not pass a warn-level logger: %s", buf.String())
	}

	logger.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("warn should pass: %s", buf.String())
	}
}
