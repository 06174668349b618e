// Package notify pushes supervision events to external consumers over
// NATS. Each event goes out on warden.events.<type> as JSON; consumers
// subscribe with whatever granularity they want.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/warden-sh/warden/internal/event"
)

const subjectPrefix = "warden.events."

// Notifier bridges the in-process bus onto a NATS connection.
type Notifier struct {
	nc   *nats.Conn
	log  *slog.Logger
	sub  *event.Subscription
	done chan struct{}
}

// New connects to url and starts forwarding all bus events. The
// connection retries forever; events raised while disconnected are
// buffered by the client up to its pending limit and then dropped.
func New(url string, bus *event.Bus, log *slog.Logger) (*Notifier, error) {
	if log == nil {
		log = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("warden"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	n := &Notifier{
		nc:   nc,
		log:  log,
		sub:  bus.Subscribe(),
		done: make(chan struct{}),
	}
	go n.loop()
	return n, nil
}

func (n *Notifier) loop() {
	defer close(n.done)
	for e := range n.sub.C {
		payload, err := json.Marshal(e)
		if err != nil {
			n.log.Warn("event marshal failed", "type", e.Type, "error", err)
			continue
		}
		if err := n.nc.Publish(subjectPrefix+string(e.Type), payload); err != nil {
			n.log.Warn("nats publish failed", "type", e.Type, "error", err)
		}
	}
}

// Close stops forwarding, flushes pending messages, and drops the
// connection.
func (n *Notifier) Close() {
	n.sub.Unsubscribe()
	<-n.done
	if err := n.nc.FlushTimeout(2 * time.Second); err != nil {
		n.log.Warn("nats flush failed", "error", err)
	}
	n.nc.Close()
}
