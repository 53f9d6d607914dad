package trace

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orderlabs/order/internal/capability"
)

func TestLog_EmitWritesJSONLines(t *testing.T) {
	root := t.TempDir()
	l := New(root, slog.New(slog.NewTextHandler(io.Discard, nil)))
	fixed := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.Emit(capability.Event{
		TraceID:  "trace-1",
		Kind:     capability.EventClassification,
		Provider: capability.ProviderOpenAI,
		Model:    "gpt-4o",
		Detail:   map[string]any{"category": "tools_unsupported"},
	})
	l.Emit(capability.Event{
		TraceID: "trace-1",
		Kind:    capability.EventDowngrade,
	})

	path := filepath.Join(root, ".order", "logs", "agent-20260826.log")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open trace log: %v", err)
	}
	defer f.Close()

	var kinds []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev struct {
			TraceID string `json:"trace_id"`
			Kind    string `json:"kind"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		if ev.TraceID != "trace-1" {
			t.Errorf("trace_id = %q, want trace-1", ev.TraceID)
		}
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != "classification" || kinds[1] != "downgrade" {
		t.Errorf("kinds = %v, want [classification downgrade]", kinds)
	}
}

func TestLog_EmitSurvivesUnwritableRoot(t *testing.T) {
	l := New(filepath.Join(string(os.PathSeparator), "proc", "no-such-root"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	// Must not panic or block; the event is dropped with a warning.
	l.Emit(capability.Event{TraceID: "t", Kind: capability.EventFail})
}
