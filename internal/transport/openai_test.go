package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orderlabs/order/internal/capability"
)

func testClient() *Client {
	return New("test-key", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func chatSnapshot() capability.Snapshot {
	return capability.Snapshot{
		Provider:       capability.ProviderOpenAICompatible,
		Model:          "gpt-4o",
		Dialect:        capability.DialectChatCompletions,
		Tools:          true,
		SystemPreamble: true,
		Streaming:      false,
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestSendChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"package main"}}]}`))
	}))
	defer srv.Close()

	req := capability.Request{
		Provider: capability.ProviderOpenAICompatible,
		Model:    "gpt-4o",
		BaseURL:  srv.URL,
		System:   "You are a coding agent.",
		Prompt:   "write hello world",
		Tools:    []capability.Tool{{Name: "run_shell", Description: "run a command"}},
	}

	resp, err := testClient().Send(context.Background(), req, chatSnapshot())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Text != "package main" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Dialect != capability.DialectChatCompletions || resp.Streamed {
		t.Errorf("Dialect/Streamed = %v/%v", resp.Dialect, resp.Streamed)
	}

	msgs, ok := got["messages"].([]any)
	if !ok || len(msgs) != 2 {
		t.Fatalf("messages = %v, want system + user", got["messages"])
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
	if _, ok := got["tools"]; !ok {
		t.Error("tools missing from request body")
	}
}

func TestSendChatGatesUnsupportedFeatures(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	req := capability.Request{
		Provider: capability.ProviderOpenAICompatible,
		Model:    "gpt-4o",
		BaseURL:  srv.URL,
		System:   "You are a coding agent.",
		Prompt:   "write hello world",
		Tools:    []capability.Tool{{Name: "run_shell"}},
	}
	snap := chatSnapshot()
	snap.Tools = false
	snap.SystemPreamble = false

	if _, err := testClient().Send(context.Background(), req, snap); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if _, ok := got["tools"]; ok {
		t.Error("tools sent despite snapshot marking them unsupported")
	}
	msgs := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d entries, want 1", len(msgs))
	}
	user := msgs[0].(map[string]any)
	if user["role"] != "user" {
		t.Errorf("role = %v, want user", user["role"])
	}
	content := user["content"].(string)
	if content != "You are a coding agent.\n\nwrite hello world" {
		t.Errorf("content = %q, want system text folded into the user turn", content)
	}
}

func TestSendChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"tools are not supported for this model","type":"invalid_request_error","code":"tool_use_not_supported"}}`))
	}))
	defer srv.Close()

	req := capability.Request{
		Provider: capability.ProviderOpenAICompatible,
		Model:    "gpt-4o",
		BaseURL:  srv.URL,
		Prompt:   "hello",
	}

	_, err := testClient().Send(context.Background(), req, chatSnapshot())
	if err == nil {
		t.Fatal("Send() error = nil, want API error")
	}

	var sendErr *capability.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error type = %T, want *capability.SendError", err)
	}
	if sendErr.Signal.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", sendErr.Signal.StatusCode)
	}
	if sendErr.Signal.ProviderCode != "tool_use_not_supported" {
		t.Errorf("ProviderCode = %q", sendErr.Signal.ProviderCode)
	}
	if sendErr.Signal.Message == "" {
		t.Error("Message should carry the provider text")
	}
}

func TestSendChatStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		if stream, _ := body["stream"].(bool); !stream {
			t.Error("stream flag not set on streaming request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
				"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer srv.Close()

	req := capability.Request{
		Provider: capability.ProviderOpenAICompatible,
		Model:    "gpt-4o",
		BaseURL:  srv.URL,
		Prompt:   "hello",
	}
	snap := chatSnapshot()
	snap.Streaming = true

	resp, err := testClient().Send(context.Background(), req, snap)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Text != "Hello" {
		t.Errorf("Text = %q, want accumulated stream", resp.Text)
	}
	if !resp.Streamed {
		t.Error("Streamed = false, want true")
	}
}

func TestSendResponses(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("path = %q, want /responses", r.URL.Path)
		}
		got = decodeBody(t, r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[{"type":"reasoning","content":[]},{"type":"message","content":[{"type":"output_text","text":"hi there"}]}]}`))
	}))
	defer srv.Close()

	req := capability.Request{
		Provider: capability.ProviderOpenAI,
		Model:    "gpt-4o",
		BaseURL:  srv.URL,
		System:   "You are a coding agent.",
		Prompt:   "greet me",
		Tools:    []capability.Tool{{Name: "run_shell"}},
	}
	snap := chatSnapshot()
	snap.Dialect = capability.DialectResponses

	resp, err := testClient().Send(context.Background(), req, snap)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.Dialect != capability.DialectResponses {
		t.Errorf("Dialect = %v, want responses", resp.Dialect)
	}

	if got["instructions"] != "You are a coding agent." {
		t.Errorf("instructions = %v", got["instructions"])
	}
	if _, ok := got["tools"]; !ok {
		t.Error("tools missing from responses request")
	}
}

func TestSendResponsesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"Unknown request URL","type":"invalid_request_error","code":"unknown_endpoint"}}`))
	}))
	defer srv.Close()

	req := capability.Request{
		Provider: capability.ProviderOpenAICompatible,
		Model:    "gpt-4o",
		BaseURL:  srv.URL,
		Prompt:   "hello",
	}
	snap := chatSnapshot()
	snap.Dialect = capability.DialectResponses

	_, err := testClient().Send(context.Background(), req, snap)
	var sendErr *capability.SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("error = %v, want *capability.SendError", err)
	}
	if sendErr.Signal.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", sendErr.Signal.StatusCode)
	}
	if sendErr.Signal.ProviderCode != "unknown_endpoint" {
		t.Errorf("ProviderCode = %q", sendErr.Signal.ProviderCode)
	}
}

func TestDefaultBaseURL(t *testing.T) {
	tests := []struct {
		provider capability.Provider
		want     string
	}{
		{capability.ProviderOpenAI, "https://api.openai.com/v1"},
		{capability.ProviderCodex, "https://api.openai.com/v1"},
		{capability.ProviderOpenAICompatible, "https://api.openai.com/v1"},
		{capability.ProviderClaude, "https://api.anthropic.com/v1"},
		{capability.ProviderGemini, "https://generativelanguage.googleapis.com/v1beta/openai"},
	}
	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			if got := defaultBaseURL(tt.provider); got != tt.want {
				t.Errorf("defaultBaseURL(%s) = %q, want %q", tt.provider, got, tt.want)
			}
		})
	}
}
