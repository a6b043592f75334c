package pipeline

import (
	"sync"
	"time"
)

// EventType classifies an Event.
type EventType string

const (
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
	EventFailed   EventType = "failed"
)

// Event is a job progress notification.
type Event struct {
	Type    EventType `json:"type"`
	JobID   string    `json:"job_id"`
	Percent int       `json:"percent"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// EventLog keeps the most recent events and fans them out on a channel.
type EventLog struct {
	mu       sync.RWMutex
	entries  []Event
	maxSize  int
	eventsCh chan Event
}

// NewEventLog keeps up to maxEntries events and buffers eventBuffer
// undelivered ones.
func NewEventLog(maxEntries, eventBuffer int) *EventLog {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEvents
	}
	if eventBuffer < 0 {
		eventBuffer = DefaultEventBuffer
	}
	return &EventLog{
		entries:  make([]Event, 0, maxEntries),
		maxSize:  maxEntries,
		eventsCh: make(chan Event, eventBuffer),
	}
}

// Add records e and emits it.
func (l *EventLog) Add(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	if len(l.entries) > l.maxSize {
		l.entries = l.entries[len(l.entries)-l.maxSize:]
	}
	l.mu.Unlock()
	l.Emit(e)
}

// Events returns the channel events are emitted on.
func (l *EventLog) Events() <-chan Event {
	return l.eventsCh
}

// Emit sends an event without blocking. It is dropped if nobody is reading.
func (l *EventLog) Emit(e Event) {
	select {
	case l.eventsCh <- e:
	default:
	}
}

// Job returns the recorded events of one job, oldest first.
func (l *EventLog) Job(jobID string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Event
	for _, e := range l.entries {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns a copy of all recorded events.
func (l *EventLog) Entries() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]Event, len(l.entries))
	copy(result, l.entries)
	return result
}
