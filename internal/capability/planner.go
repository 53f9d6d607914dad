package capability

import (
	"fmt"
	"strings"
	"time"
)

// MaxFallbackSteps is the hard ceiling on downgrade transitions within one
// logical operation, independent of how many feature flags exist.
const MaxFallbackSteps = 3

// DefaultMaxRetries bounds RetryWithoutDowngrade attempts per operation.
// The backoff policy decides spacing; this decides when to give up.
const DefaultMaxRetries = 3

// DecisionKind is the planner's verdict for one classified failure.
type DecisionKind string

const (
	DecisionDowngrade DecisionKind = "downgrade"
	DecisionRetry     DecisionKind = "retry_without_downgrade"
	DecisionFail      DecisionKind = "fail"
)

// Decision is one planner verdict. Next is populated for downgrades; Reason
// and Err (one of the terminal sentinels) explain failures.
type Decision struct {
	Kind   DecisionKind
	Next   Snapshot
	Reason string
	Err    error
}

// Step records one applied downgrade transition: what was observed, the
// snapshot before and after, when, and which layer issued it.
type Step struct {
	Category   Category   `json:"category"`
	Before     Snapshot   `json:"before"`
	After      Snapshot   `json:"after"`
	At         time.Time  `json:"at"`
	Provenance Provenance `json:"provenance"`
}

// Attempt holds the transient per-operation counters. It lives exactly as
// long as one logical operation and is never persisted.
type Attempt struct {
	TraceID string
	Steps   []Step
	Retries int
}

// StepsTaken returns how many downgrade transitions the operation consumed.
func (a *Attempt) StepsTaken() int { return len(a.Steps) }

// StepSummary renders the ordered downgrade history for terminal failures,
// so "error → decision → outcome" reads off the trace without extra context.
func (a *Attempt) StepSummary() string {
	if len(a.Steps) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(a.Steps))
	for _, s := range a.Steps {
		parts = append(parts, string(s.Category))
	}
	return strings.Join(parts, " -> ")
}

// Planner decides, from a classification and the current snapshot, whether
// to downgrade, retry unchanged, or fail. It holds no per-operation state;
// the Attempt carries the counters.
type Planner struct {
	maxSteps   int
	maxRetries int
	ttl        time.Duration
	now        func() time.Time
}

// NewPlanner creates a planner with the default step and retry budgets.
func NewPlanner() *Planner {
	return &Planner{maxSteps: MaxFallbackSteps, maxRetries: DefaultMaxRetries, ttl: DefaultTTL, now: time.Now}
}

// WithMaxRetries overrides the retry budget. Values below one are ignored.
func (p *Planner) WithMaxRetries(n int) *Planner {
	if n > 0 {
		p.maxRetries = n
	}
	return p
}

// WithTTL overrides the lifetime stamped on downgraded snapshots.
func (p *Planner) WithTTL(ttl time.Duration) *Planner {
	if ttl > 0 {
		p.ttl = ttl
	}
	return p
}

// Plan maps (snapshot, classification, attempt state) to a decision.
//
// Auth failures fail immediately and are never downgraded or silently
// retried: a credential problem must not pollute the capability cache.
// Rate limiting and transient network failures retry unchanged under their
// own attempt ceiling. Degradable categories consume downgrade steps until
// the budget is exhausted, at which point the planner fails regardless of
// category and reports the full step history.
func (p *Planner) Plan(current Snapshot, cls Classification, attempt *Attempt) Decision {
	// Credential failures are checked before everything else: they must
	// surface as fatal even when the step budget is already spent.
	if cls.Category == CategoryAuthError {
		return Decision{
			Kind:   DecisionFail,
			Err:    ErrFatalProvider,
			Reason: fmt.Sprintf("authentication failed (status %d); not retried", cls.StatusCode),
		}
	}

	// Once the step counter hits the ceiling, any further failure is
	// terminal regardless of category.
	if attempt.StepsTaken() >= p.maxSteps {
		return Decision{
			Kind: DecisionFail,
			Err:  ErrNegotiationExhausted,
			Reason: fmt.Sprintf("downgrade budget exhausted (%d steps, last: %s); steps taken: %s",
				p.maxSteps, cls.Category, attempt.StepSummary()),
		}
	}

	switch cls.Category {
	case CategoryRateLimited, CategoryTransientNetwork:
		if attempt.Retries >= p.maxRetries {
			return Decision{
				Kind: DecisionFail,
				Err:  ErrNegotiationExhausted,
				Reason: fmt.Sprintf("ran out of network retries (%d/%d, last: %s); downgrades taken: %s",
					attempt.Retries, p.maxRetries, cls.Category, attempt.StepSummary()),
			}
		}
		return Decision{Kind: DecisionRetry}

	case CategoryToolsUnsupported, CategoryResponsesUnsupported, CategoryStreamUnsupported:
		next, ok := p.downgrade(current, cls)
		if !ok {
			// The blamed feature is already disabled; there is nothing
			// monotone left to remove for this category.
			return Decision{
				Kind: DecisionFail,
				Err:  ErrNegotiationExhausted,
				Reason: fmt.Sprintf("%s reported but the capability is already disabled; steps taken: %s",
					cls.Category, attempt.StepSummary()),
			}
		}
		return Decision{Kind: DecisionDowngrade, Next: next}

	default:
		return Decision{
			Kind:   DecisionFail,
			Err:    ErrUnclassified,
			Reason: fmt.Sprintf("unclassified provider error: %s", cls.Summary),
		}
	}
}

// downgrade produces the strictly narrower snapshot for a degradable
// category. It only ever removes capability; a downgrade can never re-enable
// a previously disabled feature.
func (p *Planner) downgrade(current Snapshot, cls Classification) (Snapshot, bool) {
	next := current

	switch cls.Category {
	case CategoryToolsUnsupported:
		if !current.Tools {
			return Snapshot{}, false
		}
		next.Tools = false
	case CategoryResponsesUnsupported:
		if current.Dialect != DialectResponses {
			return Snapshot{}, false
		}
		next.Dialect = DialectChatCompletions
	case CategoryStreamUnsupported:
		if !current.Streaming {
			return Snapshot{}, false
		}
		next.Streaming = false
	default:
		return Snapshot{}, false
	}

	next.Confidence = ConfidenceDowngraded
	next.Provenance = ProvenanceRuntime
	next.Reason = downgradeReason(cls)
	next.TTLSeconds = int64(p.ttl / time.Second)
	next.LastSeen = p.now()
	if next.FirstSeen.IsZero() {
		next.FirstSeen = next.LastSeen
	}
	return next, true
}

// downgradeReason names the evidence behind a write-back so the cache stays
// auditable. Heuristic verdicts record their origin explicitly.
func downgradeReason(cls Classification) string {
	var b strings.Builder
	b.WriteString(string(cls.Category))
	if cls.ProviderCode != "" {
		fmt.Fprintf(&b, " (code=%s)", cls.ProviderCode)
	} else if cls.StatusCode != 0 {
		fmt.Fprintf(&b, " (status=%d)", cls.StatusCode)
	}
	if cls.Heuristic {
		b.WriteString("; heuristic: matched error-message marker")
	}
	return b.String()
}
