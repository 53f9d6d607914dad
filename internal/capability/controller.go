package capability

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oklog/ulid/v2"
)

// State names one phase of the negotiation state machine. Naming the states
// keeps the step budget and the termination guarantee inspectable instead of
// implicit in control flow.
type State string

const (
	StateResolving   State = "resolving"
	StateSent        State = "sent"
	StateClassifying State = "classifying"
	StatePlanning    State = "planning"
	StateDowngrading State = "downgrading"
	StateRetrying    State = "retrying"
	StateTerminal    State = "terminal"
)

// Tool describes one callable tool offered to the model. The transport
// attaches tools only when the negotiated snapshot enables them.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one logical operation's intent, independent of any provider
// dialect. The controller decides per attempt which features of it actually
// go on the wire.
type Request struct {
	Provider Provider
	Model    string
	BaseURL  string
	Override Override

	System string
	Prompt string
	Tools  []Tool
}

// Response is the provider's completed answer.
type Response struct {
	Text string

	// Dialect and Streamed record what the successful attempt actually
	// used, for status displays.
	Dialect  Dialect
	Streamed bool
}

// Sender performs the provider call. It is the external transport
// collaborator: the engine never opens connections itself. A failed send
// should return a *SendError when structured evidence is available.
type Sender interface {
	Send(ctx context.Context, req Request, snap Snapshot) (*Response, error)
}

// SendError carries the parsed failure signal across the transport
// boundary.
type SendError struct {
	Signal Signal
	Err    error
}

func (e *SendError) Error() string {
	if e.Signal.Message != "" {
		return e.Signal.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "send failed"
}

func (e *SendError) Unwrap() error { return e.Err }

// SignalFromError extracts a classification signal from any transport
// failure. Errors that are not *SendError degrade to a message-only signal,
// with network-level failures flagged so the classifier treats them as
// transient.
func SignalFromError(err error) Signal {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Signal
	}

	sig := Signal{Message: err.Error()}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		sig.Network = true
	}
	return sig
}

// Controller drives one logical operation through the negotiation state
// machine: Resolving → Sent → (on failure) Classifying → Planning →
// {Downgrading → Retrying} or Terminal. It is the sole emitter of
// negotiation trace events and never writes logs or files beyond the store.
type Controller struct {
	resolver *Resolver
	store    *Store
	planner  *Planner
	sender   Sender
	emitter  Emitter

	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// NewController wires the engine together. Store and emitter may be nil; a
// nil emitter discards events, a nil store disables persistence (useful in
// tests and dry runs).
func NewController(resolver *Resolver, store *Store, planner *Planner, sender Sender, emitter Emitter) *Controller {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	if planner == nil {
		planner = NewPlanner()
	}
	return &Controller{
		resolver:   resolver,
		store:      store,
		planner:    planner,
		sender:     sender,
		emitter:    emitter,
		newBackOff: newRetryBackOff,
		now:        time.Now,
	}
}

// newRetryBackOff is the policy for RetryWithoutDowngrade: exponential with
// jitter, capped per interval. The attempt ceiling lives in the planner.
func newRetryBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.Multiplier = 1.5
	return bo
}

// Do executes one logical operation end to end. On success it may reinforce
// the cached snapshot; on a classified incompatibility it downgrades,
// persists, and retries within the same operation; terminal failures return
// a *NegotiationError carrying the full decision trail.
func (c *Controller) Do(ctx context.Context, req Request) (*Response, error) {
	trace := ulid.Make().String()
	attempt := &Attempt{TraceID: trace}

	// Resolving.
	snap := c.resolver.Resolve(req.Provider, req.Model, req.BaseURL, req.Override)

	c.emit(Event{
		TraceID:  trace,
		Kind:     EventRequestStart,
		Provider: req.Provider,
		Model:    req.Model,
		Detail: map[string]any{
			"dialect":         snap.Dialect,
			"tools":           snap.Tools,
			"system_preamble": snap.SystemPreamble,
			"streaming":       snap.Streaming,
			"sources":         snap.Reason,
		},
	})

	bo := c.newBackOff()
	started := c.now()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Sent.
		resp, sendErr := c.sender.Send(ctx, req, snap)
		if sendErr == nil {
			c.reinforce(snap, attempt)
			c.emit(Event{
				TraceID:  trace,
				Kind:     EventRequestEnd,
				Provider: req.Provider,
				Model:    req.Model,
				Detail: map[string]any{
					"ok":          true,
					"duration_ms": c.now().Sub(started).Milliseconds(),
					"downgrades":  attempt.StepsTaken(),
					"retries":     attempt.Retries,
					"dialect":     snap.Dialect,
				},
			})
			return resp, nil
		}
		if ctx.Err() != nil {
			// Cancellation unwinds without touching the store: writes are
			// atomic replace-or-nothing, so an abandoned retry cannot
			// corrupt the cache.
			return nil, ctx.Err()
		}

		// Classifying.
		cls := Classify(SignalFromError(sendErr), snap.Dialect, FlagsFromSnapshot(snap))
		c.emit(Event{
			TraceID:  trace,
			Kind:     EventClassification,
			Provider: req.Provider,
			Model:    req.Model,
			Detail: map[string]any{
				"category":      cls.Category,
				"status_code":   cls.StatusCode,
				"provider_code": cls.ProviderCode,
				"heuristic":     cls.Heuristic,
				"degradable":    cls.Category.Degradable(),
				"summary":       cls.Summary,
			},
		})

		// Planning.
		decision := c.planner.Plan(snap, cls, attempt)

		switch decision.Kind {
		case DecisionDowngrade:
			// Downgrading: persist before the retry so the next operation
			// starts from the narrowed snapshot even if this one is
			// cancelled mid-flight.
			step := Step{
				Category:   cls.Category,
				Before:     snap,
				After:      decision.Next,
				At:         c.now(),
				Provenance: ProvenanceRuntime,
			}
			attempt.Steps = append(attempt.Steps, step)
			if c.store != nil {
				c.store.Write(decision.Next)
			}
			c.emit(Event{
				TraceID:  trace,
				Kind:     EventDowngrade,
				Provider: req.Provider,
				Model:    req.Model,
				Detail: map[string]any{
					"category":     cls.Category,
					"reason":       decision.Next.Reason,
					"from_dialect": snap.Dialect,
					"to_dialect":   decision.Next.Dialect,
					"tools_from":   snap.Tools,
					"tools_to":     decision.Next.Tools,
					"stream_from":  snap.Streaming,
					"stream_to":    decision.Next.Streaming,
					"step":         attempt.StepsTaken(),
				},
			})
			snap = decision.Next
			// Retrying with the adjusted snapshot.
			continue

		case DecisionRetry:
			attempt.Retries++
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				wait = 0
			}
			c.emit(Event{
				TraceID:  trace,
				Kind:     EventRetry,
				Provider: req.Provider,
				Model:    req.Model,
				Detail: map[string]any{
					"attempt":  attempt.Retries,
					"category": cls.Category,
					"wait_ms":  wait.Milliseconds(),
				},
			})
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
			continue

		default: // DecisionFail: terminal.
			terminal := decision.Err
			if terminal == nil {
				terminal = ErrNegotiationExhausted
			}
			negErr := &NegotiationError{
				Err:            terminal,
				TraceID:        trace,
				Provider:       req.Provider,
				Model:          req.Model,
				Classification: cls,
				Reason:         decision.Reason,
				Steps:          attempt.Steps,
				Retries:        attempt.Retries,
			}
			c.emit(Event{
				TraceID:  trace,
				Kind:     EventFail,
				Provider: req.Provider,
				Model:    req.Model,
				Detail: map[string]any{
					"category":   cls.Category,
					"reason":     decision.Reason,
					"downgrades": attempt.StepSummary(),
					"retries":    attempt.Retries,
				},
			})
			return nil, negErr
		}
	}
}

// CurrentEffective exposes the diagnostic read interface of the engine.
func (c *Controller) CurrentEffective(provider Provider, model, baseURL string, override Override) Snapshot {
	return c.resolver.CurrentEffective(provider, model, baseURL, override)
}

// reinforce refreshes the cached record after a success. Only runtime
// evidence is touched: a success over a snapshot the store never held does
// not create an entry, since defaults and overrides are re-derived on every
// resolve anyway.
func (c *Controller) reinforce(snap Snapshot, attempt *Attempt) {
	if c.store == nil {
		return
	}
	if attempt.StepsTaken() > 0 {
		// The downgraded record was already written; refresh its last-seen
		// so TTL counts from the confirmed-working state.
		snap.LastSeen = c.now()
		c.store.Write(snap)
		return
	}
	if existing, ok := c.store.Lookup(snap.Provider, snap.Model); ok {
		existing.Confidence = ConfidenceProbed
		existing.LastSeen = c.now()
		c.store.Write(existing)
	}
}

func (c *Controller) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = c.now()
	}
	c.emitter.Emit(ev)
}

// sleepCtx waits for d or until the context is cancelled, whichever comes
// first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
