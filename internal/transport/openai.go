// Package transport performs the actual provider calls. It speaks two
// dialects: chat-completions through the go-openai client, and the newer
// responses endpoint over plain HTTP. Capability gating happens here: the
// request sent over the wire never includes a feature the effective
// snapshot marks unsupported.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/orderlabs/order/internal/capability"
)

// RequestTimeout bounds a single completion call. Long for large models
// under load.
const RequestTimeout = 120 * time.Second

// Client sends model requests and converts provider failures into
// structured signals.
type Client struct {
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a transport client. The API key is sent as a bearer token on
// every request.
func New(apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: RequestTimeout,
		},
		logger: logger,
	}
}

// Send implements capability.Sender. The snapshot decides the dialect and
// which features go on the wire.
func (c *Client) Send(ctx context.Context, req capability.Request, snap capability.Snapshot) (*capability.Response, error) {
	baseURL := capability.NormalizeBaseURL(req.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL(req.Provider)
	}

	if snap.Dialect == capability.DialectResponses {
		return c.sendResponses(ctx, baseURL, req, snap)
	}
	return c.sendChat(ctx, baseURL, req, snap)
}

// defaultBaseURL returns the provider's OpenAI-compatible endpoint. Claude
// and Gemini both expose one, which keeps the wire layer down to a single
// request shape.
func defaultBaseURL(provider capability.Provider) string {
	switch provider {
	case capability.ProviderClaude:
		return "https://api.anthropic.com/v1"
	case capability.ProviderGemini:
		return "https://generativelanguage.googleapis.com/v1beta/openai"
	default:
		return "https://api.openai.com/v1"
	}
}

func (c *Client) sendChat(ctx context.Context, baseURL string, req capability.Request, snap capability.Snapshot) (*capability.Response, error) {
	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = baseURL
	cfg.HTTPClient = c.httpClient
	client := openai.NewClientWithConfig(cfg)

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: buildMessages(req, snap),
	}
	if snap.Tools && len(req.Tools) > 0 {
		chatReq.Tools = buildTools(req.Tools)
	}

	if snap.Streaming {
		text, err := c.streamChat(ctx, client, chatReq)
		if err != nil {
			return nil, convertError(err)
		}
		return &capability.Response{Text: text, Dialect: capability.DialectChatCompletions, Streamed: true}, nil
	}

	resp, err := client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	return &capability.Response{
		Text:    resp.Choices[0].Message.Content,
		Dialect: capability.DialectChatCompletions,
	}, nil
}

func (c *Client) streamChat(ctx context.Context, client *openai.Client, chatReq openai.ChatCompletionRequest) (string, error) {
	stream, err := client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return "", err
		}
		if len(chunk.Choices) > 0 {
			sb.WriteString(chunk.Choices[0].Delta.Content)
		}
	}
}

// buildMessages assembles the conversation. When the snapshot says system
// preambles are unsupported, the system text is folded into the user turn
// instead of dropped.
func buildMessages(req capability.Request, snap capability.Snapshot) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	prompt := req.Prompt
	if req.System != "" {
		if snap.SystemPreamble {
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.System,
			})
		} else {
			prompt = req.System + "\n\n" + prompt
		}
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	return msgs
}

func buildTools(tools []capability.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// responsesRequest is the subset of the responses endpoint's body this
// client uses.
type responsesRequest struct {
	Model        string          `json:"model"`
	Input        string          `json:"input"`
	Instructions string          `json:"instructions,omitempty"`
	Tools        []responsesTool `json:"tools,omitempty"`
	Stream       bool            `json:"stream"`
}

type responsesTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type responsesReply struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
}

type responsesError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// sendResponses posts to the responses endpoint directly. go-openai does
// not cover this dialect, so the request is built by hand in the same
// shape the provider documents.
func (c *Client) sendResponses(ctx context.Context, baseURL string, req capability.Request, snap capability.Snapshot) (*capability.Response, error) {
	body := responsesRequest{
		Model: req.Model,
		Input: req.Prompt,
	}
	if req.System != "" {
		if snap.SystemPreamble {
			body.Instructions = req.System
		} else {
			body.Input = req.System + "\n\n" + body.Input
		}
	}
	if snap.Tools && len(req.Tools) > 0 {
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, responsesTool{
				Type:        "function",
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			})
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sig := capability.Signal{StatusCode: resp.StatusCode, Message: string(raw)}
		var parsed responsesError
		if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
			sig.Message = parsed.Error.Message
			sig.ProviderCode = parsed.Error.Code
			if sig.ProviderCode == "" {
				sig.ProviderCode = parsed.Error.Type
			}
		}
		return nil, &capability.SendError{
			Signal: sig,
			Err:    fmt.Errorf("responses endpoint returned status %d", resp.StatusCode),
		}
	}

	var reply responsesReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var sb strings.Builder
	for _, item := range reply.Output {
		if item.Type != "message" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" {
				sb.WriteString(part.Text)
			}
		}
	}
	return &capability.Response{Text: sb.String(), Dialect: capability.DialectResponses}, nil
}

// convertError turns go-openai errors into send errors carrying the
// structured signal. Anything unrecognized passes through untouched so the
// classifier can still inspect it as a network failure.
func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &capability.SendError{
			Signal: capability.Signal{
				StatusCode:   apiErr.HTTPStatusCode,
				ProviderCode: codeString(apiErr.Code),
				Message:      apiErr.Message,
			},
			Err: err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &capability.SendError{
			Signal: capability.Signal{
				StatusCode: reqErr.HTTPStatusCode,
				Message:    err.Error(),
			},
			Err: err,
		}
	}

	return err
}

// codeString flattens the provider error code, which arrives as a string
// or a number depending on the backend.
func codeString(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
