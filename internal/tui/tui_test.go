package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fakeyudi/timebox/internal/engine"
	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/export"
	"github.com/fakeyudi/timebox/internal/timer"
)

type fakeEngine struct {
	timers  []timer.Timer
	history []timer.HistoryEntry
	calls   []string
	added   struct {
		name     string
		duration int
		category timer.Category
	}
	exportErr error
	flushErr  error
}

func (f *fakeEngine) SessionID() string { return "0123456789abcdef" }

func (f *fakeEngine) Snapshot() []timer.Timer { return f.timers }

func (f *fakeEngine) History() []timer.HistoryEntry { return f.history }

func (f *fakeEngine) HistoryStats() map[timer.Category]int { return map[timer.Category]int{} }

func (f *fakeEngine) Add(_ context.Context, name string, d int, c timer.Category) (timer.Timer, error) {
	f.calls = append(f.calls, "add")
	f.added.name, f.added.duration, f.added.category = name, d, c
	return timer.New(1, name, d, c)
}

func (f *fakeEngine) Start(_ context.Context, id int64) error {
	f.calls = append(f.calls, "start")
	return nil
}

func (f *fakeEngine) Pause(_ context.Context, id int64) error {
	f.calls = append(f.calls, "pause")
	return nil
}

func (f *fakeEngine) Reset(_ context.Context, id int64) error {
	f.calls = append(f.calls, "reset")
	return nil
}

func (f *fakeEngine) Remove(_ context.Context, id int64) (timer.Timer, error) {
	f.calls = append(f.calls, "remove")
	return timer.Timer{}, nil
}

func (f *fakeEngine) StartAll(_ context.Context, c timer.Category) (int, error) {
	f.calls = append(f.calls, "startAll:"+string(c))
	return 2, nil
}

func (f *fakeEngine) PauseAll(_ context.Context, c timer.Category) (int, error) {
	f.calls = append(f.calls, "pauseAll:"+string(c))
	return 0, nil
}

func (f *fakeEngine) ResetAll(_ context.Context, c timer.Category) (int, error) {
	f.calls = append(f.calls, "resetAll:"+string(c))
	return 0, nil
}

func (f *fakeEngine) ClearHistory(context.Context) error {
	f.calls = append(f.calls, "clear")
	f.history = nil
	return nil
}

func (f *fakeEngine) ExportHistory(context.Context) (export.Result, error) {
	f.calls = append(f.calls, "export")
	return export.Result{}, f.exportErr
}

func (f *fakeEngine) Flush(context.Context) error {
	f.calls = append(f.calls, "flush")
	return f.flushErr
}

func newModel(t *testing.T, f *fakeEngine) Model {
	t.Helper()
	m := New(context.Background(), f, make(chan engine.Event))
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model)
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// key sends msg and drops the returned command (cursor blinks and the like).
func key(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// press sends msg and runs the returned engine call back through Update.
func press(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	if done, ok := cmd().(opDoneMsg); ok {
		next, _ = m.Update(done)
		m = next.(Model)
	}
	return m
}

func sampleTimers() []timer.Timer {
	return []timer.Timer{
		{ID: 1, Name: "Plank", Duration: 4, Category: timer.Workout, Remaining: 4},
		{ID: 2, Name: "Read", Duration: 600, Category: timer.Study, Remaining: 300, HalfwayTriggered: true, Status: timer.StatusRunning},
	}
}

func TestViewListsTimers(t *testing.T) {
	m := newModel(t, &fakeEngine{timers: sampleTimers()})
	out := m.View()
	assert.Contains(t, out, "Plank")
	assert.Contains(t, out, "Read")
	assert.Contains(t, out, "5:00")
	assert.Contains(t, out, "01234567")
}

func TestTimerKeysCallEngine(t *testing.T) {
	f := &fakeEngine{timers: sampleTimers()}
	m := newModel(t, f)

	m = press(t, m, runes("s"))
	m = press(t, m, runes("j"))
	m = press(t, m, runes("p"))
	m = press(t, m, runes("r"))
	m = press(t, m, runes("x"))
	assert.Equal(t, []string{"start", "pause", "reset", "remove"}, f.calls)
	assert.Equal(t, "removed Read", m.status)
}

func TestBatchKeysUseSelectedCategory(t *testing.T) {
	f := &fakeEngine{}
	m := newModel(t, f)

	m = press(t, m, runes("c"))
	m = press(t, m, runes("S"))
	assert.Equal(t, []string{"startAll:Study"}, f.calls)
	assert.Equal(t, "started 2 Study timer(s)", m.status)
}

func TestClearHistoryNeedsConfirmation(t *testing.T) {
	f := &fakeEngine{history: []timer.HistoryEntry{{Name: "Plank", Category: timer.Workout, CompletedAt: "2026-10-15T09:00:00Z"}}}
	m := newModel(t, f)

	m = press(t, m, runes("C"))
	m = press(t, m, runes("n"))
	assert.Empty(t, f.calls)

	m = press(t, m, runes("C"))
	m = press(t, m, runes("y"))
	assert.Equal(t, []string{"clear"}, f.calls)
	assert.Empty(t, m.history)
}

func TestAddForm(t *testing.T) {
	f := &fakeEngine{}
	m := newModel(t, f)

	m = key(t, m, runes("a"))
	require.True(t, m.adding)
	m = key(t, m, runes("Plank"))
	m = key(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = key(t, m, runes("90s"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.False(t, m.adding)
	assert.Equal(t, []string{"add"}, f.calls)
	assert.Equal(t, "Plank", f.added.name)
	assert.Equal(t, 90, f.added.duration)
	assert.Equal(t, timer.Workout, f.added.category)
}

func TestAddFormRejectsBadDuration(t *testing.T) {
	f := &fakeEngine{}
	m := newModel(t, f)

	m = key(t, m, runes("a"))
	m = key(t, m, runes("Plank"))
	m = key(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = key(t, m, runes("soon"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, m.adding)
	assert.Empty(t, f.calls)
	assert.Error(t, m.err)
}

func TestHalfwayBannerIsDismissable(t *testing.T) {
	m := newModel(t, &fakeEngine{timers: sampleTimers()})

	next, cmd := m.Update(eventMsg(engine.Event{Type: engine.EventHalfway, Timer: sampleTimers()[1]}))
	m = next.(Model)
	assert.NotNil(t, cmd, "keeps listening for events")
	assert.Contains(t, m.View(), "Read is halfway done")

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.banner)
}

func TestExportStatusMessages(t *testing.T) {
	f := &fakeEngine{exportErr: tberrors.NewNothingToExport()}
	m := newModel(t, f)

	m = press(t, m, runes("e"))
	assert.Equal(t, "nothing to export yet", m.status)

	f.exportErr = tberrors.NewSharingUnavailable("/tmp/history.json")
	m = press(t, m, runes("e"))
	assert.True(t, strings.Contains(m.status, "/tmp/history.json"), m.status)
}

func TestPersistFailedShowsUnsaved(t *testing.T) {
	m := newModel(t, &fakeEngine{})
	next, _ := m.Update(eventMsg(engine.Event{Type: engine.EventPersistFailed, Err: tberrors.NewPersistence("save history", assert.AnError)}))
	m = next.(Model)
	assert.True(t, m.pending)
	assert.Contains(t, m.View(), "unsaved")

	m = press(t, m, runes("f"))
	assert.Equal(t, "saved", m.status)
	assert.False(t, m.pending)
	assert.NotContains(t, m.View(), "unsaved")
}

func TestFailedFlushStaysUnsaved(t *testing.T) {
	f := &fakeEngine{flushErr: tberrors.NewPersistence("save timers", assert.AnError)}
	m := newModel(t, f)
	next, _ := m.Update(eventMsg(engine.Event{Type: engine.EventPersistFailed, Err: f.flushErr}))
	m = next.(Model)

	m = press(t, m, runes("f"))
	assert.True(t, m.pending)
	assert.Error(t, m.err)
	assert.Contains(t, m.View(), "unsaved")
}

func TestEventsClosedQuits(t *testing.T) {
	m := newModel(t, &fakeEngine{})
	_, cmd := m.Update(eventsClosedMsg{})
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	assert.True(t, ok)
}

func TestClock(t *testing.T) {
	assert.Equal(t, "0:04", clock(4))
	assert.Equal(t, "25:00", clock(1500))
	assert.Equal(t, "1:00:01", clock(3601))
	assert.Equal(t, "0:00", clock(-3))
}
