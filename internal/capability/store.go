package capability

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// storeVersion is the persisted document version. Bump only for
// backward-incompatible layout changes.
const storeVersion = 1

// storeDocument is the on-disk envelope: one record per provider+model.
type storeDocument struct {
	Version int        `json:"version"`
	Entries []Snapshot `json:"entries"`
}

// Scope selects which entries a Reset removes. The zero value matches
// everything; setting Provider narrows to one provider; setting Model as
// well narrows to a single provider+model pair.
type Scope struct {
	Provider Provider
	Model    string
}

// ScopeAll matches every entry.
func ScopeAll() Scope { return Scope{} }

// ScopeProvider matches every entry for one provider.
func ScopeProvider(p Provider) Scope { return Scope{Provider: p} }

// ScopeModel matches a single provider+model entry.
func ScopeModel(p Provider, model string) Scope { return Scope{Provider: p, Model: model} }

func (s Scope) matches(snap Snapshot) bool {
	if s.Provider != "" && snap.Provider != s.Provider {
		return false
	}
	if s.Model != "" && !strings.EqualFold(snap.Model, s.Model) {
		return false
	}
	return true
}

// String renders the scope for audit events and user feedback.
func (s Scope) String() string {
	switch {
	case s.Provider == "":
		return "all"
	case s.Model == "":
		return string(s.Provider)
	default:
		return fmt.Sprintf("%s/%s", s.Provider, s.Model)
	}
}

// Store is the persisted capability cache. The in-memory map is
// authoritative for the life of the process; the JSON document under the
// workspace is a crash-tolerant mirror written atomically on every change.
//
// Reads are concurrent, writes serialized. Two operations racing on the same
// key resolve last-write-wins: an incorrect snapshot self-corrects on the
// next classified failure, so no finer locking is needed. No cross-process
// lock is taken over the document; concurrent processes tolerate the same
// race for the same reason.
type Store struct {
	mu      sync.RWMutex
	path    string
	logger  *slog.Logger
	now     func() time.Time
	entries map[string]Snapshot
}

// DefaultStorePath returns the cache document location under a workspace
// root: <root>/.order/capabilities.json.
func DefaultStorePath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".order", "capabilities.json")
}

// NewStore opens (or initializes) the capability cache at path. A missing or
// corrupt document is logged and treated as empty; it never fails the caller.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:    path,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]Snapshot),
	}
	s.load()
	return s
}

func storeKey(provider Provider, model string) string {
	return string(provider) + "/" + strings.ToLower(model)
}

// load reads the persisted document into memory. Corruption degrades to an
// empty cache: the next write replaces the document wholesale.
func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("capability cache unreadable, starting empty", "path", s.path, "error", err)
		}
		return
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return
	}

	var doc storeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("capability cache corrupt, starting empty", "path", s.path, "error", err)
		return
	}
	for _, snap := range doc.Entries {
		if !IsValidProvider(snap.Provider) || snap.Model == "" {
			s.logger.Warn("capability cache entry skipped",
				"provider", snap.Provider, "model", snap.Model)
			continue
		}
		s.entries[storeKey(snap.Provider, snap.Model)] = snap
	}
}

// Lookup returns the active snapshot for a provider+model pair. An entry
// past its TTL is treated as absent regardless of confidence; expiry is
// lazy, the record is not removed.
func (s *Store) Lookup(provider Provider, model string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.entries[storeKey(provider, model)]
	if !ok {
		return Snapshot{}, false
	}
	if snap.Expired(s.now()) {
		return Snapshot{}, false
	}
	return snap, true
}

// Write replaces the active snapshot for the pair and persists the document
// atomically. A persistence failure is logged and swallowed: the in-memory
// result of the current operation remains authoritative.
func (s *Store) Write(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[storeKey(snap.Provider, snap.Model)]; ok && !prev.FirstSeen.IsZero() {
		snap.FirstSeen = prev.FirstSeen
	}
	if snap.FirstSeen.IsZero() {
		snap.FirstSeen = s.now()
	}
	if snap.LastSeen.IsZero() {
		snap.LastSeen = s.now()
	}

	s.entries[storeKey(snap.Provider, snap.Model)] = snap
	if err := s.persistLocked(); err != nil {
		s.logger.Warn("capability cache write failed, keeping in-memory state",
			"path", s.path, "provider", snap.Provider, "model", snap.Model, "error", err)
	}
}

// Reset removes every entry matching the scope and returns the count
// removed.
func (s *Store) Reset(scope Scope) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, snap := range s.entries {
		if scope.matches(snap) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		if err := s.persistLocked(); err != nil {
			s.logger.Warn("capability cache write failed after reset",
				"path", s.path, "scope", scope.String(), "error", err)
		}
	}
	return removed
}

// Snapshots returns all entries, expired ones included, sorted by key. Used
// by status displays; resolution goes through Lookup which honors TTL.
func (s *Store) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Snapshot, 0, len(s.entries))
	for _, snap := range s.entries {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return storeKey(out[i].Provider, out[i].Model) < storeKey(out[j].Provider, out[j].Model)
	})
	return out
}

// persistLocked writes the document via temp-file-then-rename so a crash
// mid-write can never leave a half-written record. Caller holds s.mu.
func (s *Store) persistLocked() error {
	doc := storeDocument{Version: storeVersion, Entries: make([]Snapshot, 0, len(s.entries))}
	for _, snap := range s.entries {
		doc.Entries = append(doc.Entries, snap)
	}
	sort.Slice(doc.Entries, func(i, j int) bool {
		return storeKey(doc.Entries[i].Provider, doc.Entries[i].Model) <
			storeKey(doc.Entries[j].Provider, doc.Entries[j].Model)
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal capability cache: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".capabilities-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}
