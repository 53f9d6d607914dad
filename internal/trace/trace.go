// Package trace persists negotiation events as JSON lines under the
// workspace, one file per day, so a single trace id can be followed through
// an entire request with grep. Emission is best effort: a failed append is
// logged and never interrupts the operation that produced the event.
package trace

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/orderlabs/order/internal/capability"
)

// Log is a file-backed event sink implementing capability.Emitter.
type Log struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a trace log rooted at <workspaceRoot>/.order/logs.
func New(workspaceRoot string, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{
		dir:    filepath.Join(workspaceRoot, ".order", "logs"),
		logger: logger,
		now:    time.Now,
	}
}

// Emit appends one event to the current day's file.
func (l *Log) Emit(ev capability.Event) {
	if ev.Time.IsZero() {
		ev.Time = l.now()
	}
	if err := l.append(ev); err != nil {
		l.logger.Warn("trace event dropped", "kind", ev.Kind, "trace_id", ev.TraceID, "error", err)
	}
}

func (l *Log) append(ev capability.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	path := l.currentPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}

// currentPath returns the daily file: agent-YYYYMMDD.log.
func (l *Log) currentPath() string {
	return filepath.Join(l.dir, fmt.Sprintf("agent-%s.log", l.now().Format("20060102")))
}
