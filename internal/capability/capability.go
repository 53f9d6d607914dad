// Package capability implements provider capability negotiation for the
// model-connection layer: it decides which protocol features a provider/model
// endpoint supports, persists that decision with a TTL, and narrows the
// feature set when a live request proves the assumption wrong.
package capability

import (
	"strings"
	"time"
)

// Provider identifies a known model provider.
type Provider string

// Known providers. OpenAICompatible covers third-party gateways and proxies
// that speak the chat-completions dialect.
const (
	ProviderOpenAI           Provider = "openai"
	ProviderCodex            Provider = "codex"
	ProviderClaude           Provider = "claude"
	ProviderGemini           Provider = "gemini"
	ProviderOpenAICompatible Provider = "openai_compatible"
)

// ValidProviders returns all known provider identifiers.
func ValidProviders() []Provider {
	return []Provider{
		ProviderOpenAI,
		ProviderCodex,
		ProviderClaude,
		ProviderGemini,
		ProviderOpenAICompatible,
	}
}

// IsValidProvider returns true if the provider identifier is known.
func IsValidProvider(p Provider) bool {
	switch p {
	case ProviderOpenAI, ProviderCodex, ProviderClaude, ProviderGemini, ProviderOpenAICompatible:
		return true
	default:
		return false
	}
}

// Dialect selects the request/response shape used with a provider endpoint.
type Dialect string

const (
	// DialectResponses is the responses-style endpoint.
	DialectResponses Dialect = "responses"

	// DialectChatCompletions is the chat-completions endpoint, the lowest
	// common denominator every gateway understands.
	DialectChatCompletions Dialect = "chat_completions"
)

// Confidence records how a snapshot was established. It is diagnostic only:
// resolution precedence is decided by overrides and TTL, never by confidence.
type Confidence string

const (
	ConfidenceDeclared   Confidence = "declared"   // static default table
	ConfidenceProbed     Confidence = "probed"     // reinforced by a successful request
	ConfidenceDowngraded Confidence = "downgraded" // narrowed after a classified failure
)

// Provenance records which layer produced a snapshot or transition.
type Provenance string

const (
	ProvenanceStatic  Provenance = "static"
	ProvenanceConfig  Provenance = "config"
	ProvenanceRuntime Provenance = "runtime"
	ProvenanceManual  Provenance = "manual"
)

// DefaultTTL is applied to every snapshot the engine writes back at runtime.
// After it elapses the entry is treated as absent on read, forcing
// re-resolution from configuration and static defaults.
const DefaultTTL = 14 * 24 * time.Hour

// Snapshot is the negotiated, point-in-time feature set for one
// provider+model pair. Snapshots are immutable records: the store replaces
// them whole, never merges fields.
type Snapshot struct {
	Provider Provider `json:"provider"`
	Model    string   `json:"model"`
	Dialect  Dialect  `json:"endpoint_dialect"`

	Tools          bool `json:"supports_tools"`
	SystemPreamble bool `json:"supports_system_preamble"`
	Streaming      bool `json:"supports_streaming"`

	Confidence Confidence `json:"confidence"`
	Reason     string     `json:"reason,omitempty"`
	Provenance Provenance `json:"provenance"`

	FirstSeen  time.Time `json:"first_seen_at"`
	LastSeen   time.Time `json:"last_seen_at"`
	TTLSeconds int64     `json:"ttl_seconds"`
}

// TTL returns the snapshot's time-to-live as a duration. Zero means the
// snapshot never expires (static defaults and config overrides are computed
// fresh on every resolve and are never persisted, so only runtime evidence
// carries a TTL).
func (s Snapshot) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// Expired reports whether the snapshot should be treated as absent at the
// given instant. Staleness always wins over confidence.
func (s Snapshot) Expired(now time.Time) bool {
	if s.TTLSeconds <= 0 {
		return false
	}
	return now.After(s.LastSeen.Add(s.TTL()))
}

// FeatureCount returns how many negotiable features the snapshot enables.
// The responses dialect counts as a feature: downgrading it to
// chat-completions strictly shrinks the set.
func (s Snapshot) FeatureCount() int {
	n := 0
	if s.Tools {
		n++
	}
	if s.Streaming {
		n++
	}
	if s.SystemPreamble {
		n++
	}
	if s.Dialect == DialectResponses {
		n++
	}
	return n
}

// Override is the configuration surface for capabilities. Pointer fields let
// a document override individual features without clobbering the rest.
type Override struct {
	Dialect        *Dialect `yaml:"endpoint_dialect,omitempty" json:"endpoint_dialect,omitempty"`
	Tools          *bool    `yaml:"supports_tools,omitempty" json:"supports_tools,omitempty"`
	SystemPreamble *bool    `yaml:"supports_system_preamble,omitempty" json:"supports_system_preamble,omitempty"`
	Streaming      *bool    `yaml:"supports_streaming,omitempty" json:"supports_streaming,omitempty"`
}

// IsZero reports whether no field is set.
func (o Override) IsZero() bool {
	return o.Dialect == nil && o.Tools == nil && o.SystemPreamble == nil && o.Streaming == nil
}

// Apply returns base with every present override field replaced. Absent
// fields leave the resolved value untouched.
func (o Override) Apply(base Snapshot) Snapshot {
	if o.Dialect != nil {
		base.Dialect = *o.Dialect
	}
	if o.Tools != nil {
		base.Tools = *o.Tools
	}
	if o.SystemPreamble != nil {
		base.SystemPreamble = *o.SystemPreamble
	}
	if o.Streaming != nil {
		base.Streaming = *o.Streaming
	}
	return base
}

// sourceTags describes which fields the override pinned, for reason strings.
func (o Override) sourceTags() []string {
	var tags []string
	if o.Dialect != nil {
		tags = append(tags, "config:endpoint_dialect")
	}
	if o.Tools != nil {
		tags = append(tags, "config:tools")
	}
	if o.SystemPreamble != nil {
		tags = append(tags, "config:system_preamble")
	}
	if o.Streaming != nil {
		tags = append(tags, "config:streaming")
	}
	return tags
}

// StaticDefault returns the built-in baseline snapshot for a provider.
//
// The table is deliberately conservative: any feature nobody confirmed
// defaults to unsupported, and custom base URLs (gateways, proxies) disable
// tools and the responses dialect for the openai provider, since those are
// the features gateways most commonly lack. First contact with an unknown
// endpoint should be a safe, cheap request.
func StaticDefault(provider Provider, model, baseURL string) Snapshot {
	custom := strings.TrimSpace(baseURL) != ""

	snap := Snapshot{
		Provider:       provider,
		Model:          model,
		Dialect:        DialectChatCompletions,
		SystemPreamble: true,
		Confidence:     ConfidenceDeclared,
		Reason:         "static default",
		Provenance:     ProvenanceStatic,
	}

	switch provider {
	case ProviderOpenAI:
		snap.Tools = !custom
		snap.Streaming = true
		if !custom {
			snap.Dialect = DialectResponses
		}
	case ProviderCodex:
		snap.Tools = true
		snap.Streaming = true
	case ProviderClaude, ProviderGemini, ProviderOpenAICompatible:
		// Preamble only. Tools, streaming and the responses dialect stay off
		// until configuration or runtime evidence says otherwise.
	}

	return snap
}

// NormalizeBaseURL trims whitespace and trailing slashes so path joins never
// produce "//" and cache keys stay stable across equivalent spellings.
func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}
