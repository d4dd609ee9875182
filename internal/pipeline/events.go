package pipeline

import (
	"sync"
	"time"
)

// State of a session's pipeline machine.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
	StateError      State = "error"
)

// EventType labels lifecycle events published during a pipeline cycle.
type EventType string

const (
	EventStateChanged  EventType = "state_changed"
	EventTranscription EventType = "transcription"
	EventResponse      EventType = "response"
	EventError         EventType = "error"
)

// Event is one lifecycle notification. Events for a single session are
// published in cycle order.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	State     State     `json:"state,omitempty"`
	Text      string    `json:"text,omitempty"`
	TS        time.Time `json:"ts"`
}

const defaultBusBuffer = 64

// Bus fans lifecycle events out to subscribers. Publishing never blocks the
// pipeline: a subscriber that falls behind loses its oldest event.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	buffer int
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBusBuffer
	}
	return &Bus{
		subs:   make(map[int]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers an observer. The returned cancel func must be called
// to release the subscription; the channel is closed afterwards.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

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

// Publish delivers evt to all subscribers without blocking.
func (b *Bus) Publish(evt Event) {
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
			continue
		default:
		}
		// Full buffer: shed the oldest event, then send again. The second
		// send always has room whether we drained a slot or the subscriber
		// did, so the newest event is never the one lost.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- evt:
		default:
		}
	}
}
