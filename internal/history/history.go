// Package history exports server lifecycle events to external stores for
// audit and analytics. Sinks are append-only and never on a hot path:
// send failures are logged by callers, never propagated to instance state.
package history

import (
	"context"
	"time"
)

// EventType is the kind of lifecycle event exported.
type EventType string

const (
	EventCreated       EventType = "created"
	EventDeleted       EventType = "deleted"
	EventStarted       EventType = "started"
	EventStopped       EventType = "stopped"
	EventStatusChanged EventType = "status-changed"
)

// Record captures the affected server at event time.
type Record struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	PID      int    `json:"pid,omitempty"`
	Status   string `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

// Event is one exported history entry.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
