// Package events carries per-task lifecycle notifications from workers and
// the scheduler out to API subscribers. Delivery is best-effort: a slow
// subscriber loses events instead of stalling a worker.
package events

import "sync"

type Type string

const (
	TypeStarted   Type = "started"
	TypeProgress  Type = "progress"
	TypeLog       Type = "log"
	TypeCompleted Type = "completed"
	TypeError     Type = "error"
)

// Event is one task-scoped occurrence. Only the fields relevant to the
// event's type are populated.
type Event struct {
	Type       Type    `json:"type"`
	TaskID     string  `json:"id"`
	Progress   float64 `json:"progress"`
	Line       string  `json:"line,omitempty"`
	OutputPath string  `json:"outputPath,omitempty"`
	Message    string  `json:"error,omitempty"`
}

func Started(id string) Event {
	return Event{Type: TypeStarted, TaskID: id}
}

func Progress(id string, percent float64) Event {
	return Event{Type: TypeProgress, TaskID: id, Progress: percent}
}

func Log(id, line string) Event {
	return Event{Type: TypeLog, TaskID: id, Line: line}
}

func Completed(id, outputPath string) Event {
	return Event{Type: TypeCompleted, TaskID: id, OutputPath: outputPath}
}

func Error(id, message string) Event {
	return Event{Type: TypeError, TaskID: id, Message: message}
}

// Bus fans events out to all current subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	next   int
	buffer int
}

func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a new listener. The returned cancel function must be
// called when the listener goes away; afterwards the channel is closed.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber whose buffer has room.
// It never blocks.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; drop for this one only.
		}
	}
}
