package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewStampsServiceAndEnv(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, Options{Level: "debug", Service: "portal", Env: "test"})
	logger.Debug("hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if record["service"] != "portal" || record["env"] != "test" {
		t.Fatalf("missing attributes: %v", record)
	}
}

func TestNewTextFormatAndLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter(&buf, Options{Level: "nonsense", Format: "text"})
	logger.Debug("hidden")
	logger.Info("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Fatalf("expected text handler output, got %s", out)
	}
}
