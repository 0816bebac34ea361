// Package engine drives every timer from a single goroutine. Ticks and user
// operations are queued on one command channel, so each tick starts from the
// latest committed snapshot and never interleaves with a mutation.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"

	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/export"
	"github.com/fakeyudi/timebox/internal/logging"
	"github.com/fakeyudi/timebox/internal/store"
	"github.com/fakeyudi/timebox/internal/timer"
)

const (
	DefaultTickInterval    = time.Second
	DefaultCheckpointEvery = 5
)

// Options configures an Engine.
type Options struct {
	TickInterval time.Duration
	// CheckpointEvery is the number of ticks between durable writes of the
	// running countdowns. Mutations and completions always write.
	CheckpointEvery int
	// Ticks replaces the wall-clock ticker. Tests pass a channel that never
	// fires and drive the engine with Tick.
	Ticks <-chan time.Time
	// WatchPaths are files whose external modification triggers a reload.
	WatchPaths []string
	Logger     *log.Logger
	Now        func() time.Time
}

type command struct {
	fn    func(context.Context) error
	reply chan error
}

// pendingCompletion is a completion whose timers or history write failed.
// recorded is set once the entry is in the in-memory history log.
type pendingCompletion struct {
	timer    timer.Timer
	entry    timer.HistoryEntry
	recorded bool
}

// Engine is the tick scheduler and completion handler for one data
// directory.
type Engine struct {
	store    *store.TimerStore
	history  *store.HistoryLog
	exporter *export.Exporter
	opts     Options
	logger   *log.Logger
	session  string
	now      func() time.Time

	cmds chan command
	stop chan struct{}
	done chan struct{}

	mu       sync.Mutex
	subs     []*subscriber
	started  bool
	closed   bool
	stopOnce sync.Once
	closeErr error

	// owned by the Run goroutine
	ticks   int
	pending []pendingCompletion
}

// New wires an engine around a loaded store and history log. Nothing ticks
// until Run is called.
func New(s *store.TimerStore, h *store.HistoryLog, exp *export.Exporter, opts Options) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.CheckpointEvery <= 0 {
		opts.CheckpointEvery = DefaultCheckpointEvery
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	id := uuid.NewString()
	e := &Engine{
		store:    s,
		history:  h,
		exporter: exp,
		opts:     opts,
		logger:   opts.Logger.With("session", id[:8]),
		session:  id,
		now:      opts.Now,
		cmds:     make(chan command),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.Subscribe(func(snapshot []timer.Timer) {
		e.emit(Event{Type: EventChanged, Timers: snapshot})
	})
	return e
}

// SessionID identifies this engine instance in logs and the dashboard.
func (e *Engine) SessionID() string {
	return e.session
}

// Run owns the tick loop until ctx is cancelled or Close is called. The
// final checkpoint error, if any, is returned.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.started || e.closed {
		e.mu.Unlock()
		return tberrors.NewEngineClosed()
	}
	e.started = true
	e.mu.Unlock()

	ticks := e.opts.Ticks
	if ticks == nil {
		ticker := time.NewTicker(e.opts.TickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	loopCtx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	if len(e.opts.WatchPaths) > 0 {
		fw, err := newFileWatcher(e.opts.WatchPaths)
		if err != nil {
			e.logger.Warn("not watching for external changes", "err", err)
		} else {
			wg.Go(func() { e.watch(loopCtx, fw) })
		}
	}

	e.logger.Info("engine started", "timers", len(e.store.Snapshot()), "tick", e.opts.TickInterval)
	e.loop(loopCtx, ticks)

	cancel()
	wg.Wait()

	err := e.shutdown(context.WithoutCancel(ctx))
	e.mu.Lock()
	e.closeErr = err
	e.mu.Unlock()
	close(e.done)
	return err
}

func (e *Engine) loop(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticks:
			e.tick(ctx)
		case c := <-e.cmds:
			c.reply <- c.fn(ctx)
		}
	}
}

// shutdown writes a final checkpoint and closes subscribers.
func (e *Engine) shutdown(ctx context.Context) error {
	err := e.store.Persist(ctx)
	if len(e.pending) > 0 {
		err = multierr.Append(err, e.drain(ctx))
	}
	if err != nil {
		e.logger.Error("final checkpoint failed", "err", err)
	} else {
		e.logger.Info("engine stopped")
	}
	e.closeSubscribers()
	return err
}

// Close stops the tick source and waits for the final checkpoint. No tick
// fires after Close returns. Later operations return ENGINE_CLOSED.
func (e *Engine) Close() error {
	e.stopOnce.Do(func() { close(e.stop) })

	e.mu.Lock()
	if !e.started {
		already := e.closed
		e.closed = true
		subs := e.subs
		e.subs = nil
		e.mu.Unlock()
		if !already {
			for _, sub := range subs {
				sub.close()
			}
			close(e.done)
		}
		return nil
	}
	e.mu.Unlock()

	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeErr
}

// do runs fn on the engine goroutine and waits for its result.
func (e *Engine) do(ctx context.Context, fn func(context.Context) error) error {
	c := command{fn: fn, reply: make(chan error, 1)}
	select {
	case <-e.stop:
		return tberrors.NewEngineClosed()
	case <-e.done:
		return tberrors.NewEngineClosed()
	default:
	}
	select {
	case e.cmds <- c:
	case <-e.stop:
		return tberrors.NewEngineClosed()
	case <-e.done:
		return tberrors.NewEngineClosed()
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add creates a Paused timer.
func (e *Engine) Add(ctx context.Context, name string, duration int, category timer.Category) (timer.Timer, error) {
	var added timer.Timer
	err := e.do(ctx, func(ctx context.Context) error {
		var err error
		added, err = e.store.Add(ctx, name, duration, category)
		if err == nil {
			e.logger.Info("timer added", "id", added.ID, "name", added.Name, "duration", added.Duration)
		}
		return e.reportPersist(err)
	})
	return added, err
}

// Start resumes a Paused timer.
func (e *Engine) Start(ctx context.Context, id int64) error {
	return e.do(ctx, func(ctx context.Context) error {
		return e.reportPersist(e.store.Start(ctx, id))
	})
}

// Pause halts a Running timer.
func (e *Engine) Pause(ctx context.Context, id int64) error {
	return e.do(ctx, func(ctx context.Context) error {
		return e.reportPersist(e.store.Pause(ctx, id))
	})
}

// Reset restores a timer's full countdown.
func (e *Engine) Reset(ctx context.Context, id int64) error {
	return e.do(ctx, func(ctx context.Context) error {
		return e.reportPersist(e.store.Reset(ctx, id))
	})
}

// Remove deletes a timer without recording it in history.
func (e *Engine) Remove(ctx context.Context, id int64) (timer.Timer, error) {
	var removed timer.Timer
	err := e.do(ctx, func(ctx context.Context) error {
		var err error
		removed, err = e.store.Remove(ctx, id)
		return e.reportPersist(err)
	})
	return removed, err
}

// StartAll starts every Paused timer in category.
func (e *Engine) StartAll(ctx context.Context, category timer.Category) (int, error) {
	return e.batch(ctx, "start", category, e.store.StartAll)
}

// PauseAll pauses every Running timer in category.
func (e *Engine) PauseAll(ctx context.Context, category timer.Category) (int, error) {
	return e.batch(ctx, "pause", category, e.store.PauseAll)
}

// ResetAll resets every timer in category.
func (e *Engine) ResetAll(ctx context.Context, category timer.Category) (int, error) {
	return e.batch(ctx, "reset", category, e.store.ResetAll)
}

func (e *Engine) batch(ctx context.Context, op string, category timer.Category, fn func(context.Context, timer.Category) (int, error)) (int, error) {
	var n int
	err := e.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = fn(ctx, category)
		if err == nil {
			e.logger.Info("batch "+op, "category", category, "changed", n)
		}
		return e.reportPersist(err)
	})
	return n, err
}

// ClearHistory deletes every history entry.
func (e *Engine) ClearHistory(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) error {
		return e.reportPersist(e.history.Clear(ctx))
	})
}

// ExportHistory writes the history log and hands it to the share sink. An
// Exported event is emitted whenever a file was written, including when
// sharing was unavailable.
func (e *Engine) ExportHistory(ctx context.Context) (export.Result, error) {
	var res export.Result
	err := e.do(ctx, func(ctx context.Context) error {
		if e.exporter == nil {
			return tberrors.NewExport("no exporter configured", nil)
		}
		var err error
		res, err = e.history.Export(ctx, e.exporter)
		if res.Path != "" {
			e.logger.Info("history exported", "path", res.Path, "shared", res.Shared)
			e.emit(Event{Type: EventExported, Export: res, Err: err})
		}
		return err
	})
	return res, err
}

// Flush retries every write that failed, then emits the deferred Completed
// notifications.
func (e *Engine) Flush(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) error {
		if len(e.pending) > 0 {
			return e.drain(ctx)
		}
		err := multierr.Append(e.store.Persist(ctx), e.history.Persist(ctx))
		return e.reportPersist(err)
	})
}

// Tick advances every Running timer by one second.
func (e *Engine) Tick(ctx context.Context) error {
	return e.do(ctx, func(ctx context.Context) error {
		e.tick(ctx)
		return nil
	})
}

// Reload re-reads both collections from the gateway.
func (e *Engine) Reload(ctx context.Context) error {
	return e.do(ctx, e.reload)
}

// Pending reports how many completions are waiting for a successful write.
func (e *Engine) Pending(ctx context.Context) (int, error) {
	var n int
	err := e.do(ctx, func(context.Context) error {
		n = len(e.pending)
		return nil
	})
	return n, err
}

// Snapshot returns the current timers.
func (e *Engine) Snapshot() []timer.Timer {
	return e.store.Snapshot()
}

// History returns the history log, newest first.
func (e *Engine) History() []timer.HistoryEntry {
	return e.history.Entries()
}

// HistoryStats counts completions per category.
func (e *Engine) HistoryStats() map[timer.Category]int {
	return e.history.Stats()
}

// Find resolves a timer by id or unique name.
func (e *Engine) Find(ref string) (timer.Timer, error) {
	return e.store.Find(ref)
}

func (e *Engine) reportPersist(err error) error {
	if tberrors.Is(err, tberrors.CodePersistence) {
		e.emit(Event{Type: EventPersistFailed, Err: err})
	}
	return err
}

func (e *Engine) reload(ctx context.Context) error {
	timersChanged, errT := e.store.Reload(ctx)
	historyChanged, errH := e.history.Reload(ctx)
	if err := multierr.Append(errT, errH); err != nil {
		e.logger.Warn("reload failed", "err", err)
		return err
	}
	if timersChanged || historyChanged {
		e.logger.Info("reloaded external changes", "timers", timersChanged, "history", historyChanged)
		e.emit(Event{Type: EventReloaded, Timers: e.store.Snapshot()})
	}
	return nil
}
