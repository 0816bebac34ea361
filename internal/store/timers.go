// Package store owns the in-memory timer collection and history log and keeps
// both in sync with the persistence gateway.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/gateway"
	"github.com/fakeyudi/timebox/internal/timer"
)

// TimerStore is the ordered collection of active timers. Insertion order is
// preserved. Every mutator writes the whole collection before returning; on
// a failed write the in-memory mutation stands and a PERSISTENCE error is
// returned.
type TimerStore struct {
	mu        sync.RWMutex
	gw        gateway.Gateway
	logger    *log.Logger
	timers    []timer.Timer
	lastID    int64
	lastSaved string
	observers []func([]timer.Timer)

	now func() time.Time
}

// Open loads the persisted timers. A read or decode failure is logged and
// treated as an empty collection.
func Open(ctx context.Context, gw gateway.Gateway, logger *log.Logger) *TimerStore {
	s := &TimerStore{gw: gw, logger: logger, now: time.Now}
	timers, raw, err := s.read(ctx)
	if err != nil {
		logger.Warn("starting with no timers", "err", err)
		timers = nil
	}
	s.timers = timers
	s.lastSaved = raw
	for _, t := range timers {
		if t.ID > s.lastID {
			s.lastID = t.ID
		}
	}
	return s
}

func (s *TimerStore) read(ctx context.Context) ([]timer.Timer, string, error) {
	raw, ok, err := s.gw.Get(ctx, gateway.KeyTimers)
	if err != nil {
		return nil, "", tberrors.NewPersistence("read timers", err)
	}
	if !ok {
		return nil, "", nil
	}
	var decoded []timer.Timer
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, raw, tberrors.NewPersistence("decode timers", err)
	}

	timers := make([]timer.Timer, 0, len(decoded))
	for _, t := range decoded {
		if t.Status == timer.StatusCompleted {
			s.logger.Warn("dropping completed timer found in store", "id", t.ID, "name", t.Name)
			continue
		}
		if err := t.Check(); err != nil {
			s.logger.Warn("dropping invalid timer", "err", err)
			continue
		}
		timers = append(timers, t)
	}
	return timers, raw, nil
}

// Subscribe registers fn to receive the new snapshot after every mutation.
func (s *TimerStore) Subscribe(fn func([]timer.Timer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Snapshot returns a copy of the current collection.
func (s *TimerStore) Snapshot() []timer.Timer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTimers(s.timers)
}

// Get returns the timer with id.
func (s *TimerStore) Get(id int64) (timer.Timer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.timers, id)
	if i < 0 {
		return timer.Timer{}, false
	}
	return s.timers[i], true
}

// Find resolves ref as a numeric id or, failing that, a unique timer name.
func (s *TimerStore) Find(ref string) (timer.Timer, error) {
	ref = strings.TrimSpace(ref)
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if i := indexOf(s.timers, id); i >= 0 {
			return s.timers[i], nil
		}
	}
	var matches []timer.Timer
	for _, t := range s.timers {
		if strings.EqualFold(t.Name, ref) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 0:
		return timer.Timer{}, tberrors.NewNotFound(ref)
	case 1:
		return matches[0], nil
	default:
		return timer.Timer{}, tberrors.NewValidation(fmt.Sprintf("%d timers are named %q; use the id", len(matches), ref))
	}
}

// nextIDLocked returns a creation-timestamp id that is strictly greater than every
// id handed out or loaded so far.
func (s *TimerStore) nextIDLocked() int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Add validates and appends a new Paused timer.
func (s *TimerStore) Add(ctx context.Context, name string, duration int, category timer.Category) (timer.Timer, error) {
	s.mu.Lock()
	t, err := timer.New(0, name, duration, category)
	if err != nil {
		s.mu.Unlock()
		return timer.Timer{}, err
	}
	t.ID = s.nextIDLocked()
	s.timers = append(s.timers, t)
	err = s.persistLocked(ctx)
	s.unlockAndNotify()
	return t, err
}

// UpdateStatus moves a single timer to Running or Paused. A Completed timer
// is left as it is; Completed itself is only reachable by ticking.
func (s *TimerStore) UpdateStatus(ctx context.Context, id int64, status timer.Status) error {
	switch status {
	case timer.StatusRunning:
		return s.mutate(ctx, id, func(t timer.Timer) (timer.Timer, bool) { return t.Start() })
	case timer.StatusPaused:
		return s.mutate(ctx, id, func(t timer.Timer) (timer.Timer, bool) { return t.Pause() })
	default:
		return tberrors.NewValidation(fmt.Sprintf("cannot set status %s directly", status))
	}
}

// Start is UpdateStatus(id, Running).
func (s *TimerStore) Start(ctx context.Context, id int64) error {
	return s.UpdateStatus(ctx, id, timer.StatusRunning)
}

// Pause is UpdateStatus(id, Paused).
func (s *TimerStore) Pause(ctx context.Context, id int64) error {
	return s.UpdateStatus(ctx, id, timer.StatusPaused)
}

// Reset restores a timer's full countdown regardless of its status.
func (s *TimerStore) Reset(ctx context.Context, id int64) error {
	return s.mutate(ctx, id, func(t timer.Timer) (timer.Timer, bool) { return t.Reset(), true })
}

func (s *TimerStore) mutate(ctx context.Context, id int64, fn func(timer.Timer) (timer.Timer, bool)) error {
	s.mu.Lock()
	i := indexOf(s.timers, id)
	if i < 0 {
		s.mu.Unlock()
		return tberrors.NewNotFound(strconv.FormatInt(id, 10))
	}
	next, changed := fn(s.timers[i])
	if !changed {
		s.mu.Unlock()
		return nil
	}
	s.timers[i] = next
	err := s.persistLocked(ctx)
	s.unlockAndNotify()
	return err
}

// Remove deletes a timer by id and returns it.
func (s *TimerStore) Remove(ctx context.Context, id int64) (timer.Timer, error) {
	s.mu.Lock()
	i := indexOf(s.timers, id)
	if i < 0 {
		s.mu.Unlock()
		return timer.Timer{}, tberrors.NewNotFound(strconv.FormatInt(id, 10))
	}
	removed := s.timers[i]
	s.timers = append(s.timers[:i:i], s.timers[i+1:]...)
	err := s.persistLocked(ctx)
	s.unlockAndNotify()
	return removed, err
}

// Replace commits a recomputed collection in memory only. The tick scheduler
// uses it for per-second decrements; Persist checkpoints it.
func (s *TimerStore) Replace(next []timer.Timer) {
	s.mu.Lock()
	s.timers = cloneTimers(next)
	s.unlockAndNotify()
}

// Persist writes the current collection.
func (s *TimerStore) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked(ctx)
}

// Reload re-reads the persisted collection. It reports false when the stored
// document is the one this store last wrote or loaded.
func (s *TimerStore) Reload(ctx context.Context) (bool, error) {
	raw, ok, err := s.gw.Get(ctx, gateway.KeyTimers)
	if err != nil {
		return false, tberrors.NewPersistence("read timers", err)
	}
	s.mu.Lock()
	if (!ok && s.lastSaved == "") || raw == s.lastSaved {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	timers, raw, err := s.read(ctx)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.timers = timers
	s.lastSaved = raw
	for _, t := range timers {
		if t.ID > s.lastID {
			s.lastID = t.ID
		}
	}
	s.unlockAndNotify()
	return true, nil
}

func (s *TimerStore) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(nonNil(s.timers))
	if err != nil {
		return tberrors.NewPersistence("encode timers", err)
	}
	if err := s.gw.Set(ctx, gateway.KeyTimers, string(data)); err != nil {
		s.logger.Error("persisting timers failed", "err", err)
		return tberrors.NewPersistence("save timers", err)
	}
	s.lastSaved = string(data)
	return nil
}

// unlockAndNotify releases the write lock and hands observers a snapshot.
func (s *TimerStore) unlockAndNotify() {
	snapshot := cloneTimers(s.timers)
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(snapshot)
	}
}

func indexOf(timers []timer.Timer, id int64) int {
	for i, t := range timers {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func cloneTimers(timers []timer.Timer) []timer.Timer {
	out := make([]timer.Timer, len(timers))
	copy(out, timers)
	return out
}

func nonNil(timers []timer.Timer) []timer.Timer {
	if timers == nil {
		return []timer.Timer{}
	}
	return timers
}
