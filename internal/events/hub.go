// Package events is the in-memory compile lifecycle feed behind GET /events
// and the watch TUI.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the compile service and the workspace sweeper.
const (
	TypeCompileStarted   = "compile.started"
	TypeCompileSucceeded = "compile.succeeded"
	TypeCompileFailed    = "compile.failed"
	TypeCompileTimedOut  = "compile.timed_out"
	TypeCompileError     = "compile.error"
	TypeWorkspaceSwept   = "workspace.swept"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// CompileData is the payload of every compile.* event. Source text and
// artifacts are never published.
type CompileData struct {
	RequestID     string  `json:"request_id"`
	Principal     string  `json:"principal,omitempty"`
	Remote        string  `json:"remote,omitempty"`
	SourceBytes   int     `json:"source_bytes"`
	TimeoutSec    float64 `json:"timeout_seconds,omitempty"`
	Passes        int     `json:"passes,omitempty"`
	ExitCode      *int    `json:"exit_code,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	ArtifactBytes int     `json:"artifact_bytes,omitempty"`
	DurationMS    int64   `json:"duration_ms,omitempty"`
}

// SweepData is the payload of workspace.swept.
type SweepData struct {
	Deleted int `json:"deleted"`
}

// Publisher is the write side of a Hub.
type Publisher interface {
	Publish(eventType string, data any)
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

var _ Publisher = (*Hub)(nil)

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

func (h *Hub) Publish(eventType string, data any) {
	id := h.nextID.Add(1)

	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Don't let slow clients block compiles.
		select {
		case ch <- ev:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 128)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(string, any) {}
