package engine

import (
	"context"

	"github.com/fakeyudi/timebox/internal/timer"
)

// tick advances every Running timer by one second, starting from the latest
// committed snapshot. Halfway notifications go out before completions are
// handled, so a one-second timer reports both on the same tick.
func (e *Engine) tick(ctx context.Context) {
	current := e.store.Snapshot()
	next := make([]timer.Timer, 0, len(current))
	var (
		halfway   []timer.Timer
		completed []timer.Timer
		advanced  bool
	)
	for _, t := range current {
		updated, step := t.Advance()
		advanced = advanced || step.Advanced
		if step.Halfway {
			halfway = append(halfway, updated)
		}
		if step.Completed {
			completed = append(completed, updated)
			continue
		}
		next = append(next, updated)
	}
	if !advanced {
		return
	}

	// Completed timers leave the collection in the same commit that marks
	// them Completed.
	e.store.Replace(next)
	e.ticks++

	for _, t := range halfway {
		e.logger.Info("halfway", "id", t.ID, "name", t.Name, "remaining", t.Remaining)
		e.emit(Event{Type: EventHalfway, Timer: t})
	}

	if len(completed) > 0 {
		at := e.now()
		for _, t := range completed {
			e.logger.Info("completed", "id", t.ID, "name", t.Name, "category", t.Category)
			e.pending = append(e.pending, pendingCompletion{timer: t, entry: t.Complete(at)})
		}
		// drain writes the timers as well, which doubles as the checkpoint.
		_ = e.drain(ctx)
		e.ticks = 0
		return
	}

	if e.ticks >= e.opts.CheckpointEvery {
		e.ticks = 0
		if err := e.reportPersist(e.store.Persist(ctx)); err != nil {
			e.logger.Warn("checkpoint failed", "err", err)
			return
		}
		e.logger.Debug("checkpoint", "timers", len(next))
	}
}

// drain makes every pending completion durable: the reduced timer collection
// is written first, then the history log. Completed events are emitted only
// after both writes succeed. On failure the completions stay queued and a
// PersistFailed event is emitted; a later drain retries them in order.
func (e *Engine) drain(ctx context.Context) error {
	if err := e.store.Persist(ctx); err != nil {
		e.logger.Error("completion deferred: timers not written", "pending", len(e.pending), "err", err)
		return e.reportPersist(err)
	}

	var fresh []timer.HistoryEntry
	for i := range e.pending {
		if !e.pending[i].recorded {
			fresh = append(fresh, e.pending[i].entry)
			e.pending[i].recorded = true
		}
	}
	var err error
	if len(fresh) > 0 {
		err = e.history.Prepend(ctx, fresh...)
	} else {
		err = e.history.Persist(ctx)
	}
	if err != nil {
		e.logger.Error("completion deferred: history not written", "pending", len(e.pending), "err", err)
		return e.reportPersist(err)
	}

	done := e.pending
	e.pending = nil
	for _, p := range done {
		e.emit(Event{Type: EventCompleted, Timer: p.timer, Entry: p.entry})
	}
	return nil
}
