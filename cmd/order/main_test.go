package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltinTools(t *testing.T) {
	tools := builtinTools()
	if len(tools) == 0 {
		t.Fatal("builtinTools() returned no tools")
	}
	seen := map[string]bool{}
	for _, tool := range tools {
		if tool.Name == "" {
			t.Error("tool with empty name")
		}
		if seen[tool.Name] {
			t.Errorf("duplicate tool name %q", tool.Name)
		}
		seen[tool.Name] = true
		if tool.Parameters["type"] != "object" {
			t.Errorf("tool %q parameters should be an object schema", tool.Name)
		}
	}
	for _, want := range []string{"run_shell", "read_file", "write_file"} {
		if !seen[want] {
			t.Errorf("missing built-in tool %q", want)
		}
	}
}

func TestCapsStatusNoConnections(t *testing.T) {
	t.Setenv("ORDER_WORKSPACE", t.TempDir())
	capsStatusFlags.connection = ""

	var buf bytes.Buffer
	capsStatusCmd.SetOut(&buf)
	defer capsStatusCmd.SetOut(nil)

	if err := runCapsStatus(capsStatusCmd, nil); err != nil {
		t.Fatalf("runCapsStatus() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No connections configured.") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestCapsStatusShowsDefaults(t *testing.T) {
	root := t.TempDir()
	t.Setenv("ORDER_WORKSPACE", root)
	if err := os.MkdirAll(filepath.Join(root, ".order"), 0o755); err != nil {
		t.Fatal(err)
	}
	body := "connections:\n  - name: main\n    provider: openai\n    model: gpt-4o\n"
	if err := os.WriteFile(filepath.Join(root, ".order", "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	capsStatusFlags.connection = ""

	var buf bytes.Buffer
	capsStatusCmd.SetOut(&buf)
	defer capsStatusCmd.SetOut(nil)

	if err := runCapsStatus(capsStatusCmd, nil); err != nil {
		t.Fatalf("runCapsStatus() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"main", "openai", "gpt-4o", "dialect:", "confidence:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCapsResetValidation(t *testing.T) {
	t.Setenv("ORDER_WORKSPACE", t.TempDir())

	capsResetFlags.provider = ""
	capsResetFlags.model = "gpt-4o"
	defer func() { capsResetFlags.model = "" }()

	if err := runCapsReset(capsResetCmd, nil); err == nil {
		t.Fatal("runCapsReset() error = nil, want error for --model without --provider")
	}

	capsResetFlags.provider = "mystery"
	capsResetFlags.model = ""
	defer func() { capsResetFlags.provider = "" }()

	if err := runCapsReset(capsResetCmd, nil); err == nil {
		t.Fatal("runCapsReset() error = nil, want error for unknown provider")
	}
}

func TestCapsResetEmptyStore(t *testing.T) {
	t.Setenv("ORDER_WORKSPACE", t.TempDir())
	capsResetFlags.provider = ""
	capsResetFlags.model = ""

	var buf bytes.Buffer
	capsResetCmd.SetOut(&buf)
	defer capsResetCmd.SetOut(nil)

	if err := runCapsReset(capsResetCmd, nil); err != nil {
		t.Fatalf("runCapsReset() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Removed 0 capability record(s).") {
		t.Errorf("output = %q", buf.String())
	}
}
