package capability

import (
	"errors"
	"fmt"
	"strings"
)

// Terminal failure classes of the negotiation engine.
var (
	// ErrNegotiationExhausted indicates the downgrade-step or retry-attempt
	// ceiling was reached.
	ErrNegotiationExhausted = errors.New("negotiation exhausted")

	// ErrFatalProvider indicates an authentication failure; never retried,
	// never downgraded.
	ErrFatalProvider = errors.New("fatal provider error")

	// ErrUnclassified indicates a response the classifier could not map to
	// a specific category.
	ErrUnclassified = errors.New("unclassified provider error")
)

// NegotiationError is the terminal result of a failed logical operation. It
// carries the trace identifier, the final classification and the ordered
// downgrade history, so the cause is self-evident from the error alone.
type NegotiationError struct {
	Err error // one of the sentinels above

	TraceID        string
	Provider       Provider
	Model          string
	Classification Classification
	Reason         string
	Steps          []Step
	Retries        int
}

func (e *NegotiationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Err, e.Reason)
	fmt.Fprintf(&b, " (provider=%s model=%s category=%s trace=%s",
		e.Provider, e.Model, e.Classification.Category, e.TraceID)
	if len(e.Steps) > 0 {
		parts := make([]string, 0, len(e.Steps))
		for _, s := range e.Steps {
			parts = append(parts, string(s.Category))
		}
		fmt.Fprintf(&b, " downgrades=%s", strings.Join(parts, "->"))
	}
	b.WriteString(")")
	return b.String()
}

func (e *NegotiationError) Unwrap() error { return e.Err }

// IsFatalProvider reports whether err is a terminal auth failure.
func IsFatalProvider(err error) bool {
	return errors.Is(err, ErrFatalProvider)
}

// IsExhausted reports whether err ran out of downgrade steps or retries.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrNegotiationExhausted)
}
