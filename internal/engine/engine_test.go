package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/fakeyudi/timebox/internal/engine"
	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/export"
	"github.com/fakeyudi/timebox/internal/gateway"
	"github.com/fakeyudi/timebox/internal/logging"
	"github.com/fakeyudi/timebox/internal/store"
	"github.com/fakeyudi/timebox/internal/timer"
)

var (
	ctx      = context.Background()
	fixedNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
)

type harness struct {
	e      *engine.Engine
	events <-chan engine.Event
	runErr chan error
}

func start(t *testing.T, gw gateway.Gateway, opts engine.Options) *harness {
	t.Helper()
	if opts.Ticks == nil {
		opts.Ticks = make(chan time.Time)
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	s := store.Open(ctx, gw, logging.Discard())
	h := store.OpenHistory(ctx, gw, logging.Discard())
	exp := &export.Exporter{Dir: t.TempDir(), Sink: export.NoSink{}}
	e := engine.New(s, h, exp, opts)

	hs := &harness{e: e, events: e.Subscribe(256), runErr: make(chan error, 1)}
	go func() { hs.runErr <- e.Run(ctx) }()
	t.Cleanup(func() { _ = e.Close() })
	return hs
}

// drain collects the events already buffered. While the subscriber buffer
// has room, engine operations emit into it before they return.
func (h *harness) drain() []engine.Event {
	var out []engine.Event
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func only(events []engine.Event, types ...engine.EventType) []engine.Event {
	var out []engine.Event
	for _, ev := range events {
		for _, t := range types {
			if ev.Type == t {
				out = append(out, ev)
			}
		}
	}
	return out
}

func (h *harness) ticks(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.e.Tick(ctx))
	}
}

func TestPlankScenario(t *testing.T) {
	gw := gateway.NewMemory()
	h := start(t, gw, engine.Options{})

	plank, err := h.e.Add(ctx, "Plank", 4, timer.Workout)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, plank.ID))
	h.drain()

	h.ticks(t, 2)
	got, err := h.e.Find("Plank")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Remaining)
	assert.True(t, got.HalfwayTriggered)
	halfway := only(h.drain(), engine.EventHalfway)
	require.Len(t, halfway, 1)
	assert.Equal(t, plank.ID, halfway[0].Timer.ID)

	h.ticks(t, 2)
	assert.Empty(t, h.e.Snapshot())
	history := h.e.History()
	require.NotEmpty(t, history)
	assert.Equal(t, timer.HistoryEntry{Name: "Plank", Category: timer.Workout, CompletedAt: "2026-10-15T09:00:00Z"}, history[0])

	completed := only(h.drain(), engine.EventCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "Plank", completed[0].Entry.Name)

	// both records are durable
	cold := store.Open(ctx, gw, logging.Discard())
	assert.Empty(t, cold.Snapshot())
	assert.Equal(t, history, store.OpenHistory(ctx, gw, logging.Discard()).Entries())
}

func TestSlowSubscriberStillGetsCompletion(t *testing.T) {
	h := start(t, gateway.NewMemory(), engine.Options{})
	tm, err := h.e.Add(ctx, "Deep work", 300, timer.Study)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))

	// nobody reads while the buffer of 256 overflows with Changed events
	h.ticks(t, 300)
	require.Empty(t, h.e.Snapshot())

	require.NoError(t, h.e.Close())
	var events []engine.Event
	for ev := range h.events {
		events = append(events, ev)
	}

	notices := only(events, engine.EventHalfway, engine.EventCompleted)
	require.Len(t, notices, 2)
	assert.Equal(t, engine.EventHalfway, notices[0].Type)
	assert.Equal(t, engine.EventCompleted, notices[1].Type)
	assert.Equal(t, "Deep work", notices[1].Entry.Name)
	assert.Less(t, len(events), 300, "queued Changed events are collapsed")
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := start(t, gateway.NewMemory(), engine.Options{})
	slow := h.e.Subscribe(1)

	tm, err := h.e.Add(ctx, "Plank", 10, timer.Workout)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))
	h.ticks(t, 5)

	h.e.Unsubscribe(slow)
	done := make(chan struct{})
	go func() {
		for range slow {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("unsubscribed channel was not closed")
	}

	// the remaining subscriber keeps receiving
	h.drain()
	h.ticks(t, 1)
	assert.NotEmpty(t, only(h.drain(), engine.EventChanged))
}

func TestOneSecondTimerHalfwayBeforeCompletion(t *testing.T) {
	h := start(t, gateway.NewMemory(), engine.Options{})
	tm, err := h.e.Add(ctx, "Blink", 1, timer.Break)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))
	h.drain()

	h.ticks(t, 1)
	events := only(h.drain(), engine.EventHalfway, engine.EventCompleted)
	require.Len(t, events, 2)
	assert.Equal(t, engine.EventHalfway, events[0].Type)
	assert.Equal(t, engine.EventCompleted, events[1].Type)
}

func TestCompletionFiresExactlyOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := rapid.IntRange(1, 12).Draw(rt, "duration")
		extra := rapid.IntRange(0, 5).Draw(rt, "extra")
		h := start(t, gateway.NewMemory(), engine.Options{})
		defer h.e.Close()

		tm, err := h.e.Add(ctx, "T", d, timer.Study)
		if err != nil {
			rt.Fatal(err)
		}
		if err := h.e.Start(ctx, tm.ID); err != nil {
			rt.Fatal(err)
		}
		for i := 0; i < d+extra; i++ {
			if err := h.e.Tick(ctx); err != nil {
				rt.Fatal(err)
			}
		}
		events := h.drain()
		if n := len(only(events, engine.EventCompleted)); n != 1 {
			rt.Fatalf("completed %d times", n)
		}
		if n := len(only(events, engine.EventHalfway)); n != 1 {
			rt.Fatalf("halfway %d times", n)
		}
		if len(h.e.Snapshot()) != 0 || len(h.e.History()) != 1 {
			rt.Fatalf("timers=%d history=%d", len(h.e.Snapshot()), len(h.e.History()))
		}
	})
}

func TestTickSeesPauseBetweenTicks(t *testing.T) {
	h := start(t, gateway.NewMemory(), engine.Options{})
	tm, err := h.e.Add(ctx, "Read", 10, timer.Study)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))

	h.ticks(t, 3)
	require.NoError(t, h.e.Pause(ctx, tm.ID))
	h.ticks(t, 3)

	got, err := h.e.Find("Read")
	require.NoError(t, err)
	assert.Equal(t, 7, got.Remaining)
	assert.Equal(t, timer.StatusPaused, got.Status)
}

func TestCheckpointEveryNTicks(t *testing.T) {
	gw := gateway.NewMemory()
	h := start(t, gw, engine.Options{CheckpointEvery: 3})
	tm, err := h.e.Add(ctx, "Read", 10, timer.Study)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))
	writes := gw.Writes(gateway.KeyTimers)

	h.ticks(t, 2)
	assert.Equal(t, writes, gw.Writes(gateway.KeyTimers))
	h.ticks(t, 1)
	assert.Equal(t, writes+1, gw.Writes(gateway.KeyTimers))

	cold, _ := store.Open(ctx, gw, logging.Discard()).Get(tm.ID)
	assert.Equal(t, 7, cold.Remaining)
}

func TestIdleTicksDoNotWrite(t *testing.T) {
	gw := gateway.NewMemory()
	h := start(t, gw, engine.Options{CheckpointEvery: 1})
	_, err := h.e.Add(ctx, "Read", 10, timer.Study)
	require.NoError(t, err)
	writes := gw.Writes(gateway.KeyTimers)
	h.drain()

	h.ticks(t, 5)
	assert.Equal(t, writes, gw.Writes(gateway.KeyTimers))
	assert.Empty(t, h.drain())
}

func TestHistoryWriteFailureDefersCompletion(t *testing.T) {
	gw := gateway.NewMemory()
	h := start(t, gw, engine.Options{})
	tm, err := h.e.Add(ctx, "Plank", 2, timer.Workout)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))
	h.drain()

	gw.FailSet(gateway.KeyHistory, errors.New("disk full"))
	h.ticks(t, 2)

	events := h.drain()
	assert.Empty(t, only(events, engine.EventCompleted))
	failed := only(events, engine.EventPersistFailed)
	require.NotEmpty(t, failed)
	assert.True(t, tberrors.Is(failed[0].Err, tberrors.CodePersistence))

	n, err := h.e.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	// the timer is gone from the durable collection, the entry is in memory
	assert.Empty(t, store.Open(ctx, gw, logging.Discard()).Snapshot())
	assert.Len(t, h.e.History(), 1)

	gw.FailSet(gateway.KeyHistory, nil)
	require.NoError(t, h.e.Flush(ctx))

	completed := only(h.drain(), engine.EventCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "Plank", completed[0].Entry.Name)
	assert.Len(t, store.OpenHistory(ctx, gw, logging.Discard()).Entries(), 1)
	n, _ = h.e.Pending(ctx)
	assert.Zero(t, n)
}

func TestTimersWriteFailureKeepsHistoryUntouched(t *testing.T) {
	gw := gateway.NewMemory()
	h := start(t, gw, engine.Options{})
	tm, err := h.e.Add(ctx, "Plank", 1, timer.Workout)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))

	gw.FailSet(gateway.KeyTimers, errors.New("disk full"))
	h.ticks(t, 1)

	_, ok := gw.Raw(gateway.KeyHistory)
	assert.False(t, ok, "history must not be written before the timers")
	assert.Empty(t, h.e.History())
	assert.Empty(t, h.e.Snapshot())

	gw.FailSet(gateway.KeyTimers, nil)
	require.NoError(t, h.e.Flush(ctx))
	assert.Len(t, h.e.History(), 1)
	assert.Len(t, store.OpenHistory(ctx, gw, logging.Discard()).Entries(), 1)
	assert.Len(t, only(h.drain(), engine.EventCompleted), 1)
}

func TestLaterCompletionRetriesPending(t *testing.T) {
	gw := gateway.NewMemory()
	h := start(t, gw, engine.Options{})
	a, err := h.e.Add(ctx, "A", 1, timer.Break)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, a.ID))

	gw.FailSet(gateway.KeyHistory, errors.New("busy"))
	h.ticks(t, 1)
	gw.FailSet(gateway.KeyHistory, nil)

	b, err := h.e.Add(ctx, "B", 1, timer.Break)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, b.ID))
	h.ticks(t, 1)

	entries := store.OpenHistory(ctx, gw, logging.Discard()).Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "B", entries[0].Name)
	assert.Equal(t, "A", entries[1].Name)
}

func TestBatchOperations(t *testing.T) {
	h := start(t, gateway.NewMemory(), engine.Options{})
	a, _ := h.e.Add(ctx, "Read", 10, timer.Study)
	b, _ := h.e.Add(ctx, "Notes", 10, timer.Study)
	c, _ := h.e.Add(ctx, "Walk", 10, timer.Break)
	require.NoError(t, h.e.Start(ctx, a.ID))

	n, err := h.e.StartAll(ctx, timer.Study)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	h.ticks(t, 1)

	byID := map[int64]timer.Timer{}
	for _, tm := range h.e.Snapshot() {
		byID[tm.ID] = tm
	}
	assert.Equal(t, 9, byID[a.ID].Remaining)
	assert.Equal(t, 9, byID[b.ID].Remaining)
	assert.Equal(t, 10, byID[c.ID].Remaining)

	n, err = h.e.PauseAll(ctx, timer.Study)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = h.e.ResetAll(ctx, timer.Study)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, tm := range h.e.Snapshot() {
		assert.Equal(t, 10, tm.Remaining)
	}
}

func TestChangedEventsCarrySnapshot(t *testing.T) {
	h := start(t, gateway.NewMemory(), engine.Options{})
	_, err := h.e.Add(ctx, "Read", 10, timer.Study)
	require.NoError(t, err)

	changed := only(h.drain(), engine.EventChanged)
	require.Len(t, changed, 1)
	require.Len(t, changed[0].Timers, 1)
	assert.Equal(t, "Read", changed[0].Timers[0].Name)
}

func TestClearAndExportHistory(t *testing.T) {
	gw := gateway.NewMemory()
	h := start(t, gw, engine.Options{})

	_, err := h.e.ExportHistory(ctx)
	assert.True(t, tberrors.Is(err, tberrors.CodeNothingToExport))

	tm, _ := h.e.Add(ctx, "Plank", 1, timer.Workout)
	require.NoError(t, h.e.Start(ctx, tm.ID))
	h.ticks(t, 1)
	h.drain()

	res, err := h.e.ExportHistory(ctx)
	assert.True(t, tberrors.Is(err, tberrors.CodeSharingUnavailable))
	assert.FileExists(t, res.Path)
	exported := only(h.drain(), engine.EventExported)
	require.Len(t, exported, 1)
	assert.Equal(t, res.Path, exported[0].Export.Path)

	require.NoError(t, h.e.ClearHistory(ctx))
	assert.Empty(t, h.e.History())
	assert.Empty(t, store.OpenHistory(ctx, gw, logging.Discard()).Entries())
}

func TestReloadPicksUpExternalWrites(t *testing.T) {
	gw := gateway.NewMemory()
	h := start(t, gw, engine.Options{})
	_, err := h.e.Add(ctx, "Read", 10, timer.Study)
	require.NoError(t, err)

	require.NoError(t, h.e.Reload(ctx))
	assert.Empty(t, only(h.drain(), engine.EventReloaded))

	other := store.Open(ctx, gw, logging.Discard())
	_, err = other.Add(ctx, "Walk", 5, timer.Break)
	require.NoError(t, err)

	require.NoError(t, h.e.Reload(ctx))
	reloaded := only(h.drain(), engine.EventReloaded)
	require.Len(t, reloaded, 1)
	assert.Len(t, reloaded[0].Timers, 2)
	assert.Len(t, h.e.Snapshot(), 2)
}

func TestWatcherReloadsFileBackend(t *testing.T) {
	dir := t.TempDir()
	gw, err := gateway.NewFile(dir)
	require.NoError(t, err)
	fg := gw.(gateway.Watchable)

	h := start(t, gw, engine.Options{WatchPaths: []string{fg.Path(gateway.KeyTimers), fg.Path(gateway.KeyHistory)}})
	_, err = h.e.Add(ctx, "Read", 10, timer.Study)
	require.NoError(t, err)

	other, err := gateway.NewFile(dir)
	require.NoError(t, err)
	_, err = store.Open(ctx, other, logging.Discard()).Add(ctx, "Walk", 5, timer.Break)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(h.e.Snapshot()) == 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCloseStopsTicksAndPersists(t *testing.T) {
	gw := gateway.NewMemory()
	ticks := make(chan time.Time)
	h := start(t, gw, engine.Options{Ticks: ticks, CheckpointEvery: 100})
	tm, err := h.e.Add(ctx, "Read", 10, timer.Study)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))

	ticks <- fixedNow
	h.ticks(t, 1)

	require.NoError(t, h.e.Close())
	require.NoError(t, <-h.runErr)

	cold, ok := store.Open(ctx, gw, logging.Discard()).Get(tm.ID)
	require.True(t, ok)
	assert.Equal(t, 8, cold.Remaining)

	assert.True(t, tberrors.Is(h.e.Tick(ctx), tberrors.CodeEngineClosed))
	_, err = h.e.Add(ctx, "Late", 5, timer.Break)
	assert.True(t, tberrors.Is(err, tberrors.CodeEngineClosed))
	assert.True(t, tberrors.Is(h.e.Run(ctx), tberrors.CodeEngineClosed))

	// subscriber channel is closed after the buffered events
	for range h.events {
	}
	select {
	case ticks <- fixedNow:
		t.Fatal("tick source still read after Close")
	default:
	}
}

func TestCloseBeforeRun(t *testing.T) {
	s := store.Open(ctx, gateway.NewMemory(), logging.Discard())
	hl := store.OpenHistory(ctx, gateway.NewMemory(), logging.Discard())
	e := engine.New(s, hl, nil, engine.Options{})
	events := e.Subscribe(1)

	require.NoError(t, e.Close())
	_, open := <-events
	assert.False(t, open)
	assert.True(t, tberrors.Is(e.Run(ctx), tberrors.CodeEngineClosed))
	assert.NotEmpty(t, e.SessionID())
}

func TestFileGatewayEndToEnd(t *testing.T) {
	dir := t.TempDir()
	gw, err := gateway.NewFile(dir)
	require.NoError(t, err)
	h := start(t, gw, engine.Options{})

	tm, err := h.e.Add(ctx, "Plank", 2, timer.Workout)
	require.NoError(t, err)
	require.NoError(t, h.e.Start(ctx, tm.ID))
	h.ticks(t, 2)
	require.NoError(t, h.e.Close())

	data, err := os.ReadFile(filepath.Join(dir, "timers.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
	data, err = os.ReadFile(filepath.Join(dir, "history.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Plank","category":"Workout","completedAt":"2026-10-15T09:00:00Z"}]`, string(data))
}
