// Package event provides the typed publish/subscribe fanout that keeps
// external views (rendering surface, push channel) consistent with actual
// process and network state.
package event

import (
	"sync"
	"time"

	"github.com/warden-sh/warden/internal/ping"
	"github.com/warden-sh/warden/internal/record"
)

// Type enumerates the fixed event vocabulary.
type Type string

const (
	TypeInstanceCreated Type = "instance-created"
	TypeInstanceDeleted Type = "instance-deleted"
	TypeInstanceUpdated Type = "instance-updated"
	TypeProcessStarted  Type = "process-started"
	TypeProcessStopped  Type = "process-stopped"
	TypeProcessStdout   Type = "process-stdout"
	TypeProcessStderr   Type = "process-stderr"
	TypeProcessError    Type = "process-error"
	TypePingResult      Type = "ping-result"
	TypeStatusChanged   Type = "status-changed"
)

// Event carries the affected instance's snapshot plus type-specific fields.
type Event struct {
	Type       Type            `json:"type"`
	ServerID   string          `json:"server_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Snapshot   record.Snapshot `json:"snapshot"`

	PID       int           `json:"pid,omitempty"`        // process-started / process-stopped
	Line      string        `json:"line,omitempty"`       // process-stdout / process-stderr
	Error     string        `json:"error,omitempty"`      // process-error
	Ping      *ping.Result  `json:"ping,omitempty"`       // ping-result
	OldStatus record.Status `json:"old_status,omitempty"` // status-changed
	NewStatus record.Status `json:"new_status,omitempty"` // status-changed
}

// Subscription delivers matching events on C until Unsubscribe is called.
// Slow subscribers drop events rather than block publishers.
type Subscription struct {
	C     <-chan Event
	c     chan Event
	types map[Type]bool
	bus   *Bus
	id    int
}

// Unsubscribe detaches from the bus and closes C.
func (s *Subscription) Unsubscribe() { s.bus.unsubscribe(s.id) }

// Bus is an in-process fanout. Adapters subscribe at startup and
// unsubscribe on shutdown; there are no implicit global listeners.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*Subscription
	closed bool
}

func NewBus() *Bus { return &Bus{subs: make(map[int]*Subscription)} }

// Subscribe registers interest in the given types. With no types given the
// subscription receives every event.
func (b *Bus) Subscribe(types ...Type) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 64)
	sub := &Subscription{C: ch, c: ch, bus: b, id: b.nextID}
	if len(types) > 0 {
		sub.types = make(map[Type]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[b.nextID] = sub
	b.nextID++
	return sub
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.c)
}

// Publish fans the event out to all matching subscriptions. Events for
// saturated subscribers are dropped; fanout must never block an instance's
// poll loop or a command path.
func (b *Bus) Publish(e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.types != nil && !sub.types[e.Type] {
			continue
		}
		select {
		case sub.c <- e:
		default:
		}
	}
}

// Close shuts the bus down and closes every remaining subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.c)
	}
}
