// Package events fans dispatch outcomes out to observers such as the status
// API. It never touches host state.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultCapacity   = 256
	subscriberBacklog = 64
)

// TypeCommandCompleted is published once per dispatched command.
const TypeCommandCompleted = "command.completed"

// Event is one published occurrence as stored and streamed.
type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// CommandCompleted is the payload of a TypeCommandCompleted event.
type CommandCompleted struct {
	DispatchID string `json:"dispatch_id"`
	Command    string `json:"command"`
	Class      string `json:"class,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Remote     string `json:"remote,omitempty"`
}

// Hub keeps the most recent events in a fixed window and fans each new
// event out to live subscribers. Event IDs start at 1 and have no gaps, so
// an event's slot in the window is derived from its ID.
type Hub struct {
	mu      sync.Mutex
	window  []Event
	lastID  int64
	subs    map[*subscription]struct{}
	dropped atomic.Int64
}

type subscription struct {
	ch   chan Event
	once sync.Once
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Hub{
		window: make([]Event, capacity),
		subs:   make(map[*subscription]struct{}),
	}
}

// Publish assigns the next ID to an event and offers it to every
// subscriber. A payload that cannot be marshaled is sent as {}.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: time.Now().UTC(), Data: payload}
	h.window[h.slot(ev.ID)] = ev

	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a live receiver. The returned func ends the
// subscription and closes the channel; calling it again is a no-op.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, subscriberBacklog)}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub.ch, func() {
		sub.once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts deliveries skipped because a subscriber's buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// SnapshotSince returns the retained events newer than lastID, oldest
// first. Events that have left the window are not returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	first := max(lastID+1, h.lastID-int64(len(h.window))+1, 1)
	if first > h.lastID {
		return []Event{}
	}
	out := make([]Event, 0, h.lastID-first+1)
	for id := first; id <= h.lastID; id++ {
		out = append(out, h.window[h.slot(id)])
	}
	return out
}

func (h *Hub) slot(id int64) int {
	return int((id - 1) % int64(len(h.window)))
}
