// Package tui provides the Bubble Tea dashboard for a running engine.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/timebox/internal/engine"
	tberrors "github.com/fakeyudi/timebox/internal/errors"
	"github.com/fakeyudi/timebox/internal/export"
	"github.com/fakeyudi/timebox/internal/timer"
)

// Engine is the subset of *engine.Engine the dashboard drives.
type Engine interface {
	SessionID() string
	Snapshot() []timer.Timer
	History() []timer.HistoryEntry
	HistoryStats() map[timer.Category]int
	Add(ctx context.Context, name string, duration int, category timer.Category) (timer.Timer, error)
	Start(ctx context.Context, id int64) error
	Pause(ctx context.Context, id int64) error
	Reset(ctx context.Context, id int64) error
	Remove(ctx context.Context, id int64) (timer.Timer, error)
	StartAll(ctx context.Context, category timer.Category) (int, error)
	PauseAll(ctx context.Context, category timer.Category) (int, error)
	ResetAll(ctx context.Context, category timer.Category) (int, error)
	ClearHistory(ctx context.Context) error
	ExportHistory(ctx context.Context) (export.Result, error)
	Flush(ctx context.Context) error
}

// ── Tabs ────────────

type tabID int

const (
	tabTimers tabID = iota
	tabHistory
	tabCount
)

var tabNames = [tabCount]string{"Timers", "History"}

// ── Messages ────────────

type eventMsg engine.Event

type eventsClosedMsg struct{}

// opDoneMsg reports the outcome of an engine call made from a key press.
type opDoneMsg struct {
	status string
	err    error
	saved  bool // every collection is durable again
}

// ── Model ────────────

// Model is the root Bubble Tea model for the dashboard.
type Model struct {
	ctx    context.Context
	eng    Engine
	events <-chan engine.Event

	timers   []timer.Timer
	history  []timer.HistoryEntry
	stats    map[timer.Category]int
	pending  bool
	cursor   int
	category int

	activeTab tabID
	historyVP viewport.Model
	bar       progress.Model
	width     int
	height    int
	ready     bool

	// add form
	adding bool
	inputs []textinput.Model
	focus  int

	confirmClear bool
	banner       string
	status       string
	err          error
}

// New creates a dashboard for eng, fed by events from eng.Subscribe.
func New(ctx context.Context, eng Engine, events <-chan engine.Event) Model {
	name := textinput.New()
	name.Placeholder = "name"
	name.CharLimit = 64
	dur := textinput.New()
	dur.Placeholder = "seconds or 25m"
	dur.CharLimit = 16

	m := Model{
		ctx:    ctx,
		eng:    eng,
		events: events,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(24)),
		inputs: []textinput.Model{name, dur},
	}
	m.refresh()
	return m
}

// listen waits for the next engine event.
func listen(events <-chan engine.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *Model) refresh() {
	m.timers = m.eng.Snapshot()
	m.history = m.eng.History()
	m.stats = m.eng.HistoryStats()
	if m.cursor >= len(m.timers) {
		m.cursor = max(len(m.timers)-1, 0)
	}
	if m.ready {
		m.historyVP.SetContent(m.renderHistory())
	}
}

func (m Model) selectedCategory() timer.Category {
	cats := timer.Categories()
	return cats[m.category%len(cats)]
}

func (m Model) selected() (timer.Timer, bool) {
	if m.cursor < 0 || m.cursor >= len(m.timers) {
		return timer.Timer{}, false
	}
	return m.timers[m.cursor], true
}

// run performs an engine call off the update loop.
func (m Model) run(fn func(ctx context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		status, err := fn(ctx)
		return opDoneMsg{status: status, err: err}
	}
}

// ── Bubble Tea interface ────────────

func (m Model) Init() tea.Cmd {
	return listen(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.historyVP = viewport.New(m.width, max(m.height-4, 1))
		m.ready = true
		m.historyVP.SetContent(m.renderHistory())
		return m, nil

	case eventMsg:
		m.handleEvent(engine.Event(msg))
		return m, listen(m.events)

	case eventsClosedMsg:
		return m, tea.Quit

	case opDoneMsg:
		m.err = msg.err
		m.status = msg.status
		if msg.err != nil {
			m.status = describe(msg.err)
		} else if msg.saved {
			m.pending = false
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if m.adding {
			return m.updateForm(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) handleEvent(ev engine.Event) {
	switch ev.Type {
	case engine.EventHalfway:
		m.banner = fmt.Sprintf("½  %s is halfway done (%s left)", ev.Timer.Name, clock(ev.Timer.Remaining))
	case engine.EventCompleted:
		m.banner = fmt.Sprintf("✓  %s (%s) completed", ev.Entry.Name, ev.Entry.Category)
		m.pending = false
	case engine.EventPersistFailed:
		m.pending = true
		m.status = "not saved: " + ev.Err.Error() + "  (f to retry)"
	case engine.EventReloaded:
		m.status = "reloaded changes from another timebox process"
	case engine.EventExported:
		m.status = "exported to " + ev.Export.Path
	}
	m.refresh()
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.confirmClear {
		m.confirmClear = false
		if key == "y" {
			return m, m.run(func(ctx context.Context) (string, error) {
				return "history cleared", m.eng.ClearHistory(ctx)
			})
		}
		m.status = "clear cancelled"
		return m, nil
	}
	if m.banner != "" && (key == "esc" || key == "enter") {
		m.banner = ""
		return m, nil
	}

	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.activeTab = (m.activeTab + 1) % tabCount
		return m, nil
	case "c":
		m.category = (m.category + 1) % len(timer.Categories())
		return m, nil
	case "C":
		m.confirmClear = true
		m.status = "clear all history? y to confirm"
		return m, nil
	case "e":
		return m, m.run(func(ctx context.Context) (string, error) {
			res, err := m.eng.ExportHistory(ctx)
			if err != nil {
				return "", err
			}
			return "exported and shared " + res.Path, nil
		})
	case "f":
		ctx := m.ctx
		return m, func() tea.Msg {
			err := m.eng.Flush(ctx)
			return opDoneMsg{status: "saved", err: err, saved: err == nil}
		}
	case "a":
		m.adding = true
		m.focus = 0
		for i := range m.inputs {
			m.inputs[i].SetValue("")
			m.inputs[i].Blur()
		}
		return m, m.inputs[0].Focus()
	}

	if m.activeTab == tabHistory {
		var cmd tea.Cmd
		m.historyVP, cmd = m.historyVP.Update(msg)
		return m, cmd
	}
	return m.updateTimerKeys(key)
}

func (m Model) updateTimerKeys(key string) (tea.Model, tea.Cmd) {
	cat := m.selectedCategory()
	switch key {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.timers)-1 {
			m.cursor++
		}
		return m, nil
	case "S":
		return m, m.run(func(ctx context.Context) (string, error) {
			n, err := m.eng.StartAll(ctx, cat)
			return fmt.Sprintf("started %d %s timer(s)", n, cat), err
		})
	case "P":
		return m, m.run(func(ctx context.Context) (string, error) {
			n, err := m.eng.PauseAll(ctx, cat)
			return fmt.Sprintf("paused %d %s timer(s)", n, cat), err
		})
	case "R":
		return m, m.run(func(ctx context.Context) (string, error) {
			n, err := m.eng.ResetAll(ctx, cat)
			return fmt.Sprintf("reset %d %s timer(s)", n, cat), err
		})
	}

	t, ok := m.selected()
	if !ok {
		return m, nil
	}
	switch key {
	case "s":
		return m, m.run(func(ctx context.Context) (string, error) {
			return "started " + t.Name, m.eng.Start(ctx, t.ID)
		})
	case "p":
		return m, m.run(func(ctx context.Context) (string, error) {
			return "paused " + t.Name, m.eng.Pause(ctx, t.ID)
		})
	case "r":
		return m, m.run(func(ctx context.Context) (string, error) {
			return "reset " + t.Name, m.eng.Reset(ctx, t.ID)
		})
	case "x":
		return m, m.run(func(ctx context.Context) (string, error) {
			_, err := m.eng.Remove(ctx, t.ID)
			return "removed " + t.Name, err
		})
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.adding = false
		m.status = "add cancelled"
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		m.inputs[m.focus].Blur()
		m.focus = (m.focus + 1) % len(m.inputs)
		return m, m.inputs[m.focus].Focus()
	case "ctrl+t":
		m.category = (m.category + 1) % len(timer.Categories())
		return m, nil
	case "enter":
		name := m.inputs[0].Value()
		secs, err := timer.ParseDuration(m.inputs[1].Value())
		if err != nil {
			m.err = err
			m.status = describe(err)
			return m, nil
		}
		cat := m.selectedCategory()
		m.adding = false
		return m, m.run(func(ctx context.Context) (string, error) {
			t, err := m.eng.Add(ctx, name, secs, cat)
			return fmt.Sprintf("added %s (%s)", t.Name, clock(t.Duration)), err
		})
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// describe turns an engine error into a one-line status.
func describe(err error) string {
	switch {
	case tberrors.Is(err, tberrors.CodeNothingToExport):
		return "nothing to export yet"
	case tberrors.Is(err, tberrors.CodeSharingUnavailable):
		return strings.TrimPrefix(err.Error(), string(tberrors.CodeSharingUnavailable)+": ")
	case tberrors.Is(err, tberrors.CodeValidation):
		return strings.TrimPrefix(err.Error(), string(tberrors.CodeValidation)+": ")
	case tberrors.Is(err, tberrors.CodePersistence):
		return "not saved: " + err.Error() + "  (f to retry)"
	default:
		return "error: " + err.Error()
	}
}

// Run starts the dashboard and blocks until the user quits or the engine
// shuts down.
func Run(ctx context.Context, eng Engine, events <-chan engine.Event) error {
	p := tea.NewProgram(New(ctx, eng, events), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
