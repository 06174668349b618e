package warden

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/warden-sh/warden/internal/api"
	"github.com/warden-sh/warden/internal/config"
	"github.com/warden-sh/warden/internal/event"
	"github.com/warden-sh/warden/internal/history"
	historyfactory "github.com/warden-sh/warden/internal/history/factory"
	"github.com/warden-sh/warden/internal/logger"
	"github.com/warden-sh/warden/internal/metrics"
	"github.com/warden-sh/warden/internal/notify"
	"github.com/warden-sh/warden/internal/ping"
	"github.com/warden-sh/warden/internal/record"
	"github.com/warden-sh/warden/internal/registry"
	"github.com/warden-sh/warden/internal/render"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Record = record.Record

type Patch = record.Patch

type Snapshot = record.Snapshot

type Status = record.Status

type Event = event.Event

type Actor = registry.Actor

type Config = config.Config

type RenderTarget = render.Target

// Warden wires the supervision core out of one Config: record store, probe
// pool, event bus, registry, plus the optional push channel and history
// sink. Embedders that want their own HTTP surface use Registry and Bus
// directly.
type Warden struct {
	cfg      config.Config
	log      *slog.Logger
	bus      *event.Bus
	pool     *ping.Pool
	registry *registry.Registry
	notifier *notify.Notifier
	sink     history.Sink
	forward  *history.Forwarder
}

// Option tweaks construction before anything starts.
type Option func(*options)

type options struct {
	target render.Target
	log    *slog.Logger
}

// WithRenderTarget attaches a rendering surface for server status.
func WithRenderTarget(t render.Target) Option { return func(o *options) { o.target = t } }

// WithLogger overrides the logger built from the config's log section.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// LoadConfig reads a TOML config file; an empty path yields the defaults.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// New builds a Warden from cfg and loads all persisted server records.
// Instances begin polling immediately.
func New(ctx context.Context, cfg Config, opts ...Option) (*Warden, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log
	if log == nil {
		log = logger.New(cfg.Log.Level, cfg.Log.Color)
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	bus := event.NewBus()
	pool := ping.NewPool(ping.NewChecker(), cfg.PingWorkers)
	w := &Warden{cfg: cfg, log: log, bus: bus, pool: pool}

	w.registry = registry.New(registry.Options{
		Store:             record.NewStore(cfg.ServersDir),
		Prober:            pool,
		Bus:               bus,
		Target:            o.target,
		Log:               log,
		Console:           cfg.Console,
		Grace:             cfg.GraceTimeout,
		ZeroMaxAsOffline:  cfg.ZeroMaxAsOffline,
		StopServersOnExit: cfg.StopServersOnExit,
	})

	if cfg.HistoryDSN != "" {
		sink, err := historyfactory.NewSink(cfg.HistoryDSN)
		if err != nil {
			w.shutdownEarly()
			return nil, fmt.Errorf("history sink: %w", err)
		}
		w.sink = sink
		w.forward = history.Forward(bus, sink, log)
	}
	if cfg.NATSURL != "" {
		n, err := notify.New(cfg.NATSURL, bus, log)
		if err != nil {
			w.shutdownEarly()
			return nil, fmt.Errorf("push channel: %w", err)
		}
		w.notifier = n
	}

	if err := w.registry.LoadAll(ctx); err != nil {
		w.shutdownEarly()
		return nil, err
	}
	return w, nil
}

// Registry exposes the server registry for direct embedding.
func (w *Warden) Registry() *registry.Registry { return w.registry }

// Bus exposes the event bus for additional subscribers.
func (w *Warden) Bus() *event.Bus { return w.bus }

// Logger returns the logger the core components share.
func (w *Warden) Logger() *slog.Logger { return w.log }

// Servers returns snapshots of every attached server sorted by name.
func (w *Warden) Servers() []Snapshot { return w.registry.List() }

// Dispatch runs a named action (start/stop/restart/info) for an actor.
func (w *Warden) Dispatch(ctx context.Context, id, action string, actor Actor) (Snapshot, error) {
	return w.registry.Dispatch(ctx, id, action, actor)
}

// CreateServer validates, persists, and attaches a new server. Ping
// defaults from the config fill any omitted settings first.
func (w *Warden) CreateServer(ctx context.Context, rec Record) (Snapshot, error) {
	w.cfg.ApplyPingDefaults(&rec)
	return w.registry.Create(ctx, rec)
}

// UpdateServer applies a partial update to a server.
func (w *Warden) UpdateServer(ctx context.Context, id string, patch Patch) (Snapshot, error) {
	return w.registry.Update(ctx, id, patch)
}

// DeleteServer detaches a server, optionally purging its record file.
func (w *Warden) DeleteServer(ctx context.Context, id string, purge bool) error {
	return w.registry.Delete(ctx, id, purge)
}

// ContainerRemoved tells the supervisor that a rendering container was
// deleted on the surface side. Servers attached to it are detached without
// purging their record files.
func (w *Warden) ContainerRemoved(ctx context.Context, containerRef string) {
	w.registry.ContainerRemoved(ctx, containerRef)
}

// NewHTTPServer starts the pull API on addr.
func (w *Warden) NewHTTPServer(addr string) *http.Server {
	return api.NewServer(addr, w.registry, w.cfg.AuthToken)
}

// APIHandler returns the pull API handler for mounting in another server.
func (w *Warden) APIHandler() http.Handler {
	return api.NewRouter(w.registry, w.cfg.AuthToken).Handler()
}

// Shutdown stops all instances (honoring stop_servers_on_exit), then the
// push channel and history sink, then the bus.
func (w *Warden) Shutdown(ctx context.Context) {
	w.registry.Shutdown(ctx)
	if w.notifier != nil {
		w.notifier.Close()
	}
	if w.forward != nil {
		w.forward.Stop()
	}
	if w.sink != nil {
		_ = w.sink.Close()
	}
	w.bus.Close()
	w.pool.Close()
}

func (w *Warden) shutdownEarly() {
	if w.forward != nil {
		w.forward.Stop()
	}
	if w.sink != nil {
		_ = w.sink.Close()
	}
	w.bus.Close()
	w.pool.Close()
}
