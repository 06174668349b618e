package history

import (
	"context"
	"log/slog"
	"time"

	"github.com/warden-sh/warden/internal/event"
)

// Forwarder subscribes to the event bus and writes the lifecycle subset
// to a sink. Console output and ping results are deliberately excluded;
// history records transitions, not traffic.
type Forwarder struct {
	sink Sink
	log  *slog.Logger
	sub  *event.Subscription
	done chan struct{}
}

// Forward starts forwarding bus events to sink until Stop is called.
func Forward(bus *event.Bus, sink Sink, log *slog.Logger) *Forwarder {
	if log == nil {
		log = slog.Default()
	}
	f := &Forwarder{
		sink: sink,
		log:  log,
		sub: bus.Subscribe(
			event.TypeInstanceCreated,
			event.TypeInstanceDeleted,
			event.TypeProcessStarted,
			event.TypeProcessStopped,
			event.TypeStatusChanged,
		),
		done: make(chan struct{}),
	}
	go f.loop()
	return f
}

func (f *Forwarder) loop() {
	defer close(f.done)
	for e := range f.sub.C {
		he := Event{
			Type:       mapType(e.Type),
			OccurredAt: e.OccurredAt,
			Record: Record{
				ServerID: e.ServerID,
				Name:     e.Snapshot.Name,
				PID:      e.PID,
				Status:   string(e.Snapshot.Status),
			},
		}
		if e.Type == event.TypeStatusChanged {
			he.Record.Detail = string(e.OldStatus) + " -> " + string(e.NewStatus)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := f.sink.Send(ctx, he); err != nil {
			f.log.Warn("history write failed", "type", he.Type, "server", he.Record.Name, "error", err)
		}
		cancel()
	}
}

func mapType(t event.Type) EventType {
	switch t {
	case event.TypeInstanceCreated:
		return EventCreated
	case event.TypeInstanceDeleted:
		return EventDeleted
	case event.TypeProcessStarted:
		return EventStarted
	case event.TypeProcessStopped:
		return EventStopped
	default:
		return EventStatusChanged
	}
}

// Stop unsubscribes and waits for in-flight writes to finish.
func (f *Forwarder) Stop() {
	f.sub.Unsubscribe()
	<-f.done
}
