package capability

import (
	"strings"
)

// Category is the normalized outcome of error classification. It maps the
// heterogeneous error bodies of providers and gateways onto stable
// semantics, so the planner never depends on any vendor's prose.
type Category string

const (
	CategoryToolsUnsupported     Category = "tools_unsupported"
	CategoryResponsesUnsupported Category = "responses_unsupported"
	CategoryStreamUnsupported    Category = "stream_unsupported"
	CategoryAuthError            Category = "auth_error"
	CategoryRateLimited          Category = "rate_limited"
	CategoryTransientNetwork     Category = "transient_network"
	CategoryUnknown              Category = "unknown"
)

// Degradable reports whether the category can trigger a capability
// downgrade.
func (c Category) Degradable() bool {
	switch c {
	case CategoryToolsUnsupported, CategoryResponsesUnsupported, CategoryStreamUnsupported:
		return true
	default:
		return false
	}
}

// Retryable reports whether the category is retried unchanged under the
// backoff policy.
func (c Category) Retryable() bool {
	return c == CategoryRateLimited || c == CategoryTransientNetwork
}

// Signal carries the parsed, structured evidence of a failed request. The
// transport extracts it once; classification is a pure function over it.
type Signal struct {
	// StatusCode is the HTTP status, 0 when the request never got a
	// response.
	StatusCode int

	// ProviderCode is the structured error code from the response body
	// (e.g. "tools_not_supported"), empty when the body had none.
	ProviderCode string

	// Message is the provider's error text, used only by the heuristic
	// fallback tier.
	Message string

	// Network marks transport-level failures: timeouts, refused
	// connections, resets.
	Network bool
}

// RequestFlags records which negotiable features the failed request actually
// attempted. Correlating codes against these prevents the classifier from
// blaming a feature the request never used.
type RequestFlags struct {
	Tools     bool
	Streaming bool
	Responses bool
}

// FlagsFromSnapshot derives the attempted-feature flags from the snapshot a
// request was built with.
func FlagsFromSnapshot(s Snapshot) RequestFlags {
	return RequestFlags{
		Tools:     s.Tools,
		Streaming: s.Streaming,
		Responses: s.Dialect == DialectResponses,
	}
}

// Classification is the classifier's verdict plus the evidence that produced
// it, so a trace reader can reconstruct how the category was derived.
type Classification struct {
	Category     Category
	StatusCode   int
	ProviderCode string

	// Heuristic marks verdicts from the message-marker fallback tier.
	// Snapshots produced from them record the lower-confidence origin.
	Heuristic bool

	// Summary is the first line of the provider message, trimmed for
	// traces.
	Summary string
}

// Structured provider error codes, correlated with the feature the request
// attempted. Matching is by exact code or documented prefix; free-text
// matching lives in the heuristic tier only.
var (
	toolsErrorCodes = []string{
		"tools_not_supported",
		"tool_use_not_supported",
		"function_calling_not_supported",
		"unsupported_parameter:tools",
	}
	responsesErrorCodes = []string{
		"responses_not_supported",
		"unknown_endpoint",
		"route_not_found",
		"not_found",
	}
	streamErrorCodes = []string{
		"stream_not_supported",
		"streaming_not_supported",
		"unsupported_parameter:stream",
	}
)

// heuristicMarker is one entry of the compiled fallback table. Every marker
// requires the corresponding feature to have been attempted.
type heuristicMarker struct {
	substr   string
	category Category
}

var heuristicMarkers = []heuristicMarker{
	{"tools are not supported", CategoryToolsUnsupported},
	{"does not support tools", CategoryToolsUnsupported},
	{"does not support function calling", CategoryToolsUnsupported},
	{"failed to get tool definitions", CategoryToolsUnsupported},
	{"invalid parameter: tools", CategoryToolsUnsupported},
	{"responses api", CategoryResponsesUnsupported},
	{"responses endpoint", CategoryResponsesUnsupported},
	{"unknown endpoint /v1/responses", CategoryResponsesUnsupported},
	{"/responses", CategoryResponsesUnsupported},
	{"does not support streaming", CategoryStreamUnsupported},
	{"stream is not supported", CategoryStreamUnsupported},
	{"streaming is not supported", CategoryStreamUnsupported},
}

// Classify maps a failure signal to a category. It is deterministic, does no
// I/O, and checks tiers strictly in order:
//
//  1. status 401/403 is an auth failure unconditionally, whatever the body
//     says; credential problems must never be mistaken for capability
//     problems;
//  2. status 429 is rate limiting;
//  3. status 400/404/422 with a recognized structured code correlated to an
//     attempted feature yields the matching unsupported category;
//  4. network failures, timeouts and 5xx are transient;
//  5. only then the compiled marker table inspects the message, and the
//     verdict is tagged heuristic;
//  6. everything else is unknown.
func Classify(sig Signal, dialect Dialect, flags RequestFlags) Classification {
	cls := Classification{
		StatusCode:   sig.StatusCode,
		ProviderCode: sig.ProviderCode,
		Summary:      firstLine(sig.Message, 200),
	}

	switch sig.StatusCode {
	case 401, 403:
		cls.Category = CategoryAuthError
		return cls
	case 429:
		cls.Category = CategoryRateLimited
		return cls
	}

	if sig.StatusCode == 400 || sig.StatusCode == 404 || sig.StatusCode == 422 {
		if cat, ok := categoryFromCode(sig.ProviderCode, flags); ok {
			cls.Category = cat
			return cls
		}
	}

	if sig.Network || sig.StatusCode == 408 || (sig.StatusCode >= 500 && sig.StatusCode <= 599) {
		cls.Category = CategoryTransientNetwork
		return cls
	}

	if cat, ok := categoryFromMessage(sig.Message, flags); ok {
		cls.Category = cat
		cls.Heuristic = true
		return cls
	}

	cls.Category = CategoryUnknown
	return cls
}

// categoryFromCode is the structured tier: exact provider codes correlated
// to the feature the request attempted.
func categoryFromCode(code string, flags RequestFlags) (Category, bool) {
	if code == "" {
		return CategoryUnknown, false
	}
	code = strings.ToLower(strings.TrimSpace(code))

	if flags.Tools && containsCode(toolsErrorCodes, code) {
		return CategoryToolsUnsupported, true
	}
	if flags.Responses && containsCode(responsesErrorCodes, code) {
		return CategoryResponsesUnsupported, true
	}
	if flags.Streaming && containsCode(streamErrorCodes, code) {
		return CategoryStreamUnsupported, true
	}
	return CategoryUnknown, false
}

// categoryFromMessage is the heuristic tier: a last resort over the error
// prose, gated on the attempted features.
func categoryFromMessage(message string, flags RequestFlags) (Category, bool) {
	if message == "" {
		return CategoryUnknown, false
	}
	normalized := strings.ToLower(message)

	for _, m := range heuristicMarkers {
		if !strings.Contains(normalized, m.substr) {
			continue
		}
		switch m.category {
		case CategoryToolsUnsupported:
			if flags.Tools {
				return m.category, true
			}
		case CategoryResponsesUnsupported:
			if flags.Responses {
				return m.category, true
			}
		case CategoryStreamUnsupported:
			if flags.Streaming {
				return m.category, true
			}
		}
	}
	return CategoryUnknown, false
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

func firstLine(text string, maxChars int) string {
	line := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		line = text[:idx]
	}
	line = strings.TrimSpace(line)
	runes := []rune(line)
	if len(runes) <= maxChars {
		return line
	}
	return string(runes[:maxChars-2]) + ".."
}
