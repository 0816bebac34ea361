package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/charmbracelet/log"

	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/export"
	"github.com/fakeyudi/timebox/internal/gateway"
	"github.com/fakeyudi/timebox/internal/timer"
)

// HistoryLog is the newest-first record of completed timers. Entries are only
// ever prepended; the whole log can be cleared.
type HistoryLog struct {
	mu        sync.RWMutex
	gw        gateway.Gateway
	logger    *log.Logger
	entries   []timer.HistoryEntry
	lastSaved string
}

// OpenHistory loads the persisted history. A read or decode failure is logged
// and treated as an empty log.
func OpenHistory(ctx context.Context, gw gateway.Gateway, logger *log.Logger) *HistoryLog {
	h := &HistoryLog{gw: gw, logger: logger}
	entries, raw, err := h.read(ctx)
	if err != nil {
		logger.Warn("starting with empty history", "err", err)
	}
	h.entries = entries
	h.lastSaved = raw
	return h
}

func (h *HistoryLog) read(ctx context.Context) ([]timer.HistoryEntry, string, error) {
	raw, ok, err := h.gw.Get(ctx, gateway.KeyHistory)
	if err != nil {
		return nil, "", tberrors.NewPersistence("read history", err)
	}
	if !ok {
		return nil, "", nil
	}
	var entries []timer.HistoryEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, raw, tberrors.NewPersistence("decode history", err)
	}
	return entries, raw, nil
}

// Entries returns a newest-first copy of the log.
func (h *HistoryLog) Entries() []timer.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneEntries(h.entries)
}

// Len reports the number of entries.
func (h *HistoryLog) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// ByCategory returns the entries tagged with category, newest first.
func (h *HistoryLog) ByCategory(category timer.Category) []timer.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []timer.HistoryEntry
	for _, e := range h.entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// Stats counts completions per category.
func (h *HistoryLog) Stats() map[timer.Category]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	counts := make(map[timer.Category]int, len(timer.Categories()))
	for _, e := range h.entries {
		counts[e.Category]++
	}
	return counts
}

// Prepend records entries, oldest first, at the head of the log and writes
// the log once. The last entry given becomes the head. On a failed write the
// entries stay in memory.
func (h *HistoryLog) Prepend(ctx context.Context, entries ...timer.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	next := make([]timer.HistoryEntry, 0, len(h.entries)+len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		next = append(next, entries[i])
	}
	next = append(next, h.entries...)
	h.entries = next
	return h.persistLocked(ctx)
}

// Clear deletes every entry. The persisted record is removed so a later read
// sees an empty log.
func (h *HistoryLog) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
	return h.persistLocked(ctx)
}

// Persist writes the current log.
func (h *HistoryLog) Persist(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.persistLocked(ctx)
}

// Reload re-reads the persisted log, reporting false when nothing changed.
func (h *HistoryLog) Reload(ctx context.Context) (bool, error) {
	entries, raw, err := h.read(ctx)
	if err != nil {
		return false, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if raw == h.lastSaved {
		return false, nil
	}
	h.entries = entries
	h.lastSaved = raw
	return true, nil
}

// Export hands a snapshot of the log to exp.
func (h *HistoryLog) Export(ctx context.Context, exp *export.Exporter) (export.Result, error) {
	return exp.Export(ctx, h.Entries())
}

func (h *HistoryLog) persistLocked(ctx context.Context) error {
	if len(h.entries) == 0 {
		if err := h.gw.Remove(ctx, gateway.KeyHistory); err != nil {
			h.logger.Error("clearing history failed", "err", err)
			return tberrors.NewPersistence("clear history", err)
		}
		h.lastSaved = ""
		return nil
	}
	data, err := json.Marshal(h.entries)
	if err != nil {
		return tberrors.NewPersistence("encode history", err)
	}
	if err := h.gw.Set(ctx, gateway.KeyHistory, string(data)); err != nil {
		h.logger.Error("persisting history failed", "err", err)
		return tberrors.NewPersistence("save history", err)
	}
	h.lastSaved = string(data)
	return nil
}

func cloneEntries(entries []timer.HistoryEntry) []timer.HistoryEntry {
	out := make([]timer.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}
