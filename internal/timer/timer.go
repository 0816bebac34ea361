// Package timer holds the Timer entity and the pure transition rules applied
// to it by user actions and by the tick scheduler.
package timer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tberrors "github.com/fakeyudi/timebox/internal/errors"
)

// Status is the lifecycle state of a timer.
type Status int

const (
	StatusPaused Status = iota
	StatusRunning
	StatusCompleted
)

var statusNames = [...]string{"Paused", "Running", "Completed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status as its persisted name.
func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("invalid timer status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText decodes a persisted status name.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus resolves a status name, case-insensitively.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown timer status %q", name)
}

// Timer is a named countdown. Duration and Remaining are whole seconds.
type Timer struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Duration         int      `json:"duration"`
	Category         Category `json:"category"`
	Remaining        int      `json:"remaining"`
	HalfwayTriggered bool     `json:"halfwayTriggered"`
	Status           Status   `json:"status"`
}

// New validates the inputs and returns a Paused timer with a full countdown.
func New(id int64, name string, duration int, category Category) (Timer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Timer{}, tberrors.NewValidation("timer name is required")
	}
	if duration <= 0 {
		return Timer{}, tberrors.NewValidation("duration must be a positive number of seconds")
	}
	if !category.Valid() {
		return Timer{}, tberrors.NewValidation(fmt.Sprintf("unknown category %q", string(category)))
	}
	return Timer{
		ID:        id,
		Name:      name,
		Duration:  duration,
		Category:  category,
		Remaining: duration,
		Status:    StatusPaused,
	}, nil
}

// ParseDuration parses a user-entered duration. A bare integer is a number of
// seconds; Go duration strings ("90s", "25m") are also accepted and truncated
// to whole seconds.
func ParseDuration(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, tberrors.NewValidation("duration is required")
	}
	if n, err := strconv.Atoi(text); err == nil {
		if n <= 0 {
			return 0, tberrors.NewValidation("duration must be a positive number of seconds")
		}
		return n, nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return 0, tberrors.NewValidation(fmt.Sprintf("duration %q is not a number of seconds", text))
	}
	secs := int(d / time.Second)
	if secs <= 0 {
		return 0, tberrors.NewValidation("duration must be at least one second")
	}
	return secs, nil
}

// HalfwayMark is the remaining value at which the halfway event fires.
func (t Timer) HalfwayMark() int {
	return t.Duration / 2
}

// Progress is the fraction of the countdown still remaining, in [0, 1].
func (t Timer) Progress() float64 {
	if t.Duration <= 0 {
		return 0
	}
	p := float64(t.Remaining) / float64(t.Duration)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// Start moves a Paused timer to Running. Completed timers are never
// resurrected. The bool reports whether anything changed.
func (t Timer) Start() (Timer, bool) {
	if t.Status != StatusPaused {
		return t, false
	}
	t.Status = StatusRunning
	return t, true
}

// Pause moves a Running timer to Paused.
func (t Timer) Pause() (Timer, bool) {
	if t.Status != StatusRunning {
		return t, false
	}
	t.Status = StatusPaused
	return t, true
}

// Reset restores the full countdown regardless of the current status.
func (t Timer) Reset() Timer {
	t.Remaining = t.Duration
	t.Status = StatusPaused
	t.HalfwayTriggered = false
	return t
}

// Step describes what happened to a timer during one tick.
type Step struct {
	Advanced  bool
	Halfway   bool
	Completed bool
}

// Advance applies one tick. Only Running timers with time left move; the
// halfway check runs before the completion check, so a one-second timer
// reports both on the same tick.
func (t Timer) Advance() (Timer, Step) {
	if t.Status != StatusRunning || t.Remaining <= 0 {
		return t, Step{}
	}
	t.Remaining--
	step := Step{Advanced: true}

	if !t.HalfwayTriggered && t.Remaining == t.HalfwayMark() {
		t.HalfwayTriggered = true
		step.Halfway = true
	}
	if t.Remaining == 0 {
		t.Status = StatusCompleted
		step.Completed = true
	}
	return t, step
}

// Check validates a timer read back from persistence.
func (t Timer) Check() error {
	switch {
	case strings.TrimSpace(t.Name) == "":
		return fmt.Errorf("timer %d: empty name", t.ID)
	case t.Duration <= 0:
		return fmt.Errorf("timer %d: non-positive duration %d", t.ID, t.Duration)
	case !t.Category.Valid():
		return fmt.Errorf("timer %d: unknown category %q", t.ID, string(t.Category))
	case t.Remaining < 0 || t.Remaining > t.Duration:
		return fmt.Errorf("timer %d: remaining %d outside 0..%d", t.ID, t.Remaining, t.Duration)
	case (t.Status == StatusCompleted) != (t.Remaining == 0):
		return fmt.Errorf("timer %d: status %s with remaining %d", t.ID, t.Status, t.Remaining)
	case t.HalfwayTriggered && t.Remaining > t.HalfwayMark():
		return fmt.Errorf("timer %d: halfway latched above the halfway mark", t.ID)
	}
	return nil
}

// Complete derives the history record for a timer that just reached zero.
func (t Timer) Complete(at time.Time) HistoryEntry {
	return HistoryEntry{
		Name:        t.Name,
		Category:    t.Category,
		CompletedAt: at.Format(time.RFC3339),
	}
}
