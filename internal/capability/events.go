package capability

import "time"

// EventKind tags one negotiation state transition.
type EventKind string

const (
	EventRequestStart   EventKind = "request_start"
	EventRequestEnd     EventKind = "request_end"
	EventClassification EventKind = "classification"
	EventDowngrade      EventKind = "downgrade"
	EventRetry          EventKind = "retry"
	EventFail           EventKind = "fail"
	EventCacheReset     EventKind = "cache_reset"
)

// Event is one structured negotiation trace record. The controller emits one
// per state transition; the sink (storage, rotation, aggregation) belongs to
// the external observability collaborator.
type Event struct {
	TraceID  string         `json:"trace_id"`
	Time     time.Time      `json:"ts"`
	Kind     EventKind      `json:"kind"`
	Provider Provider       `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// Emitter consumes negotiation trace events. Implementations must be safe
// for concurrent use and must never block the operation; the engine treats
// emission as fire-and-forget.
type Emitter interface {
	Emit(ev Event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
