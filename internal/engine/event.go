package engine

import (
	"sync"
	"time"

	"github.com/fakeyudi/timebox/internal/export"
	"github.com/fakeyudi/timebox/internal/timer"
)

// EventType identifies an engine notification.
type EventType int

const (
	// EventChanged carries the timer collection after any mutation or tick.
	EventChanged EventType = iota
	// EventHalfway fires once per timer when it reaches half of its duration.
	EventHalfway
	// EventCompleted fires once per timer after its completion is durable.
	EventCompleted
	// EventPersistFailed reports a write that did not reach the gateway.
	EventPersistFailed
	// EventReloaded reports state replaced by an external write.
	EventReloaded
	// EventExported reports a written history export.
	EventExported
)

func (t EventType) String() string {
	switch t {
	case EventChanged:
		return "changed"
	case EventHalfway:
		return "halfway"
	case EventCompleted:
		return "completed"
	case EventPersistFailed:
		return "persist_failed"
	case EventReloaded:
		return "reloaded"
	case EventExported:
		return "exported"
	default:
		return "unknown"
	}
}

// Event is a notification fanned out to subscribers.
type Event struct {
	Type   EventType
	At     time.Time
	Timer  timer.Timer        // Halfway, Completed
	Entry  timer.HistoryEntry // Completed
	Timers []timer.Timer      // Changed, Reloaded
	Export export.Result      // Exported
	Err    error              // PersistFailed, Exported when sharing failed
}

// Subscribe registers an observer channel with the given buffer. Events go
// straight into the buffer while it has room. Beyond that they queue per
// subscriber and are delivered in order, with consecutive Changed events
// collapsed into the newest one, so Halfway and Completed are never lost to
// a slow reader. The channel is closed when the engine shuts down or the
// subscriber calls Unsubscribe.
func (e *Engine) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Event, buffer), quit: make(chan struct{})}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		sub.finish()
		return sub.ch
	}
	e.subs = append(e.subs, sub)
	return sub.ch
}

// Unsubscribe stops delivery to ch and closes it. Events still queued for
// ch are discarded.
func (e *Engine) Unsubscribe(ch <-chan Event) {
	e.mu.Lock()
	var found *subscriber
	for i, sub := range e.subs {
		if (<-chan Event)(sub.ch) == ch {
			found = sub
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	if found != nil {
		found.abandon()
	}
}

func (e *Engine) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sub := range e.subs {
		sub.send(ev)
	}
}

func (e *Engine) closeSubscribers() {
	e.mu.Lock()
	subs := e.subs
	e.subs = nil
	e.closed = true
	e.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// subscriber owns one observer channel. Overflow is held in queue and fed to
// ch by a pump goroutine that runs only while queue is non-empty.
type subscriber struct {
	ch   chan Event
	quit chan struct{}

	mu       sync.Mutex
	queue    []Event
	pumping  bool
	closing  bool
	quitOnce sync.Once
	doneOnce sync.Once
}

func (s *subscriber) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return
	}
	if !s.pumping && len(s.queue) == 0 {
		select {
		case s.ch <- ev:
			return
		default:
		}
	}
	if n := len(s.queue); ev.Type == EventChanged && n > 0 && s.queue[n-1].Type == EventChanged {
		s.queue[n-1] = ev
		return
	}
	s.queue = append(s.queue, ev)
	if !s.pumping {
		s.pumping = true
		go s.pump()
	}
}

func (s *subscriber) pump() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.pumping = false
			closing := s.closing
			s.mu.Unlock()
			if closing {
				s.finish()
			}
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- ev:
		case <-s.quit:
			s.finish()
			return
		}
	}
}

// close closes ch once every queued event has been delivered.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closing = true
	pumping := s.pumping
	s.mu.Unlock()
	if !pumping {
		s.finish()
	}
}

func (s *subscriber) abandon() {
	s.quitOnce.Do(func() { close(s.quit) })
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	s.close()
}

func (s *subscriber) finish() {
	s.doneOnce.Do(func() { close(s.ch) })
}
