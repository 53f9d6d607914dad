package capability

import (
	"log/slog"
	"strings"
	"time"
)

// Resolver merges the three decision layers into one effective snapshot per
// request. Priority, highest first:
//
//  1. fields explicitly present in the configuration override, which win
//     regardless of cache content;
//  2. a non-expired store entry;
//  3. the built-in static default table.
//
// Any feature with no answer at any level stays unsupported; the resolver
// never invents capability.
type Resolver struct {
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver creates a resolver over the given store. The store may be nil,
// in which case only overrides and static defaults apply.
func NewResolver(store *Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, logger: logger, now: time.Now}
}

// Resolve returns the effective snapshot for one request. It is a pure read:
// resolving twice with no intervening store change yields identical results.
func (r *Resolver) Resolve(provider Provider, model, baseURL string, override Override) Snapshot {
	sources := []string{"static"}
	snap := StaticDefault(provider, model, NormalizeBaseURL(baseURL))

	if r.store != nil {
		if cached, ok := r.store.Lookup(provider, model); ok {
			snap = cached
			sources = append(sources, "cache")
		}
	}

	if !override.IsZero() {
		snap = override.Apply(snap)
		snap.Provenance = ProvenanceConfig
		sources = append(sources, override.sourceTags()...)
	}

	snap.Reason = strings.Join(sources, ",")

	r.logger.Debug("capability resolution",
		"provider", provider,
		"model", model,
		"dialect", snap.Dialect,
		"tools", snap.Tools,
		"system_preamble", snap.SystemPreamble,
		"streaming", snap.Streaming,
		"confidence", snap.Confidence,
		"sources", snap.Reason,
	)
	return snap
}

// CurrentEffective is the diagnostic read interface for status displays. It
// resolves with the given override and reports where each layer contributed.
func (r *Resolver) CurrentEffective(provider Provider, model, baseURL string, override Override) Snapshot {
	return r.Resolve(provider, model, baseURL, override)
}
