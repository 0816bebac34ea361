package store

import (
	"context"
	"fmt"

	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/timer"
)

// StartAll starts every Paused timer in category. Completed timers are not
// resurrected. The collection is written once for the whole batch.
func (s *TimerStore) StartAll(ctx context.Context, category timer.Category) (int, error) {
	return s.batch(ctx, category, func(t timer.Timer) (timer.Timer, bool) { return t.Start() })
}

// PauseAll pauses every Running timer in category.
func (s *TimerStore) PauseAll(ctx context.Context, category timer.Category) (int, error) {
	return s.batch(ctx, category, func(t timer.Timer) (timer.Timer, bool) { return t.Pause() })
}

// ResetAll resets every timer in category regardless of status.
func (s *TimerStore) ResetAll(ctx context.Context, category timer.Category) (int, error) {
	return s.batch(ctx, category, func(t timer.Timer) (timer.Timer, bool) { return t.Reset(), true })
}

// batch applies fn to every timer tagged with category and reports how many
// changed. Other categories are untouched.
func (s *TimerStore) batch(ctx context.Context, category timer.Category, fn func(timer.Timer) (timer.Timer, bool)) (int, error) {
	if !category.Valid() {
		return 0, tberrors.NewValidation(fmt.Sprintf("unknown category %q", string(category)))
	}

	s.mu.Lock()
	next := cloneTimers(s.timers)
	changed := 0
	for i, t := range next {
		if t.Category != category {
			continue
		}
		updated, ok := fn(t)
		if !ok {
			continue
		}
		next[i] = updated
		changed++
	}
	if changed == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	s.timers = next
	err := s.persistLocked(ctx)
	s.unlockAndNotify()
	return changed, err
}
