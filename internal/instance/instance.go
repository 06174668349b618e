// Package instance binds one server record to its supervised process and
// health-poll loop. Each instance runs a single goroutine that serializes
// commands and polls, so record state never sees concurrent mutation.
package instance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warden-sh/warden/internal/event"
	"github.com/warden-sh/warden/internal/logger"
	"github.com/warden-sh/warden/internal/metrics"
	"github.com/warden-sh/warden/internal/ping"
	"github.com/warden-sh/warden/internal/process"
	"github.com/warden-sh/warden/internal/record"
	"github.com/warden-sh/warden/internal/render"
)

var (
	// ErrClosed is returned by operations on a deleted instance.
	ErrClosed = errors.New("instance closed")
	// ErrStopFailed means the stop signal went out but the process did not
	// confirm termination within the grace window.
	ErrStopFailed = errors.New("server stop failed")
	// ErrMutableWhileRunning rejects updates to launch or endpoint fields
	// while the process is running.
	ErrMutableWhileRunning = errors.New("field requires the server to be stopped")
)

// Options carries the shared collaborators an instance needs. Prober and
// Bus are required; Target and Persist are optional.
type Options struct {
	Prober ping.Prober
	Bus    *event.Bus
	Target render.Target
	Log    *slog.Logger

	Console logger.Config
	Grace   time.Duration

	// ZeroMaxAsOffline treats a reachable endpoint reporting max_players=0
	// as offline; some servers answer pings before accepting players.
	ZeroMaxAsOffline bool

	// Persist writes the record back after the instance mutates it (for
	// example when the rendering surface assigns a new message ref).
	Persist func(*record.Record) error
}

type task struct {
	fn   func()
	done chan struct{}
}

// Instance is one supervised server. All mutating operations funnel
// through the run goroutine; Snapshot reads through the mutex.
type Instance struct {
	opts Options
	sup  *process.Supervisor
	log  *slog.Logger

	mu          sync.Mutex
	rec         record.Record
	lastPing    ping.Result
	pendingStop bool
	lastStatus  record.Status
	lastPID     int // pid of the current or most recent generation

	tasks    chan task
	kick     chan struct{} // exit observer requests a status resync
	closed   chan struct{}
	loopDone chan struct{}
	closeOne sync.Once
}

// New builds the instance and starts its run loop. The first poll happens
// immediately so an already-occupied endpoint is detected at attach time.
func New(rec record.Record, opts Options) *Instance {
	i := &Instance{
		opts:       opts,
		rec:        rec,
		lastStatus: record.StatusOffline,
		tasks:      make(chan task),
		kick:       make(chan struct{}, 1),
		closed:     make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	i.log = opts.Log
	if i.log == nil {
		i.log = slog.Default()
	}
	i.log = i.log.With("server", rec.Name, "id", rec.ID)
	i.sup = process.NewSupervisor(i.spec(rec), (*exitObserver)(i))
	go i.run()
	return i
}

func (i *Instance) spec(rec record.Record) process.Spec {
	return process.Spec{
		Name:       rec.Name,
		Command:    rec.Launch.Command,
		Args:       rec.Launch.Args,
		WorkDir:    rec.Launch.WorkDir,
		StopSignal: rec.Launch.StopSignal,
		Detached:   rec.Launch.Detach,
		Console:    i.opts.Console,
	}
}

// ID returns the record id, which never changes over the instance's life.
func (i *Instance) ID() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rec.ID
}

// Record returns a copy of the current record.
func (i *Instance) Record() record.Record {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rec
}

// Snapshot derives the externally visible state from the process handle,
// the last probe, and the pending-stop flag. It never blocks on I/O.
func (i *Instance) Snapshot() record.Snapshot {
	running := i.sup.Running()
	i.mu.Lock()
	defer i.mu.Unlock()
	return record.Snapshot{
		Record: i.rec,
		Status: record.DeriveStatus(running, i.reachableLocked(), i.pendingStop),
	}
}

// LastPing returns the most recent probe result.
func (i *Instance) LastPing() ping.Result {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastPing
}

func (i *Instance) reachableLocked() bool {
	if !i.lastPing.Reachable {
		return false
	}
	if i.opts.ZeroMaxAsOffline && i.lastPing.MaxPlayers == 0 {
		return false
	}
	return true
}

// Start spawns the child process. It fails with process.ErrAlreadyRunning
// when a live handle exists.
func (i *Instance) Start(ctx context.Context) error {
	var opErr error
	if err := i.do(ctx, func() { opErr = i.startLocked() }); err != nil {
		return err
	}
	return opErr
}

// Stop signals the child and waits up to the grace window. The Stopping
// state is published before the wait begins. A stop on an already-stopped
// server fails with process.ErrNotRunning.
func (i *Instance) Stop(ctx context.Context) error {
	var opErr error
	if err := i.do(ctx, func() { opErr = i.stopLocked() }); err != nil {
		return err
	}
	return opErr
}

// Restart stops the child if running, then starts a fresh generation.
func (i *Instance) Restart(ctx context.Context) error {
	var opErr error
	if err := i.do(ctx, func() {
		if i.sup.Running() {
			if err := i.stopLocked(); err != nil {
				opErr = err
				return
			}
		}
		opErr = i.startLocked()
	}); err != nil {
		return err
	}
	return opErr
}

// Poll runs one probe cycle out of schedule.
func (i *Instance) Poll(ctx context.Context) error {
	return i.do(ctx, func() { i.poll() })
}

// Console writes one line to the child's stdin.
func (i *Instance) Console(line string) error {
	return i.sup.WriteConsole(line)
}

// Update merges the patch into the record. Fields that are immutable while
// the process runs are rejected with ErrMutableWhileRunning; the merged
// record is re-validated before it replaces the old one.
func (i *Instance) Update(ctx context.Context, patch record.Patch) (record.Snapshot, error) {
	var (
		snap  record.Snapshot
		opErr error
	)
	err := i.do(ctx, func() {
		if patch.RequiresRestart() && i.sup.Running() {
			opErr = ErrMutableWhileRunning
			return
		}
		i.mu.Lock()
		merged := i.rec.Merge(patch)
		i.mu.Unlock()
		if err := merged.Validate(); err != nil {
			opErr = err
			return
		}
		i.mu.Lock()
		i.rec = merged
		i.mu.Unlock()
		i.sup.UpdateSpec(i.spec(merged))
		i.persist()
		snap = i.Snapshot()
		i.publish(event.Event{Type: event.TypeInstanceUpdated, ServerID: snap.ID, Snapshot: snap})
		if patch.RequiresReattach() {
			i.renderSurface(snap)
		}
	})
	if err != nil {
		return record.Snapshot{}, err
	}
	return snap, opErr
}

// Close stops the run loop. With stopChild set, a running non-detached
// process is terminated first; detached children are always left alone.
func (i *Instance) Close(stopChild bool) {
	i.closeOne.Do(func() { close(i.closed) })
	<-i.loopDone
	if stopChild && i.sup.Running() && !i.sup.Detached() {
		if err := i.sup.Stop(i.grace()); err != nil && !errors.Is(err, process.ErrNotRunning) {
			i.log.Warn("stop on close failed", "error", err)
			_ = i.sup.Kill()
		}
	}
}

// RemoveSurface deletes the rendered message, if any. Used on purge.
func (i *Instance) RemoveSurface(ctx context.Context) {
	i.mu.Lock()
	ref := i.rec.Attachment.MessageID
	i.mu.Unlock()
	if i.opts.Target == nil || ref == "" {
		return
	}
	if err := i.opts.Target.Delete(ctx, ref); err != nil {
		i.log.Warn("surface delete failed", "error", err)
	}
}

func (i *Instance) grace() time.Duration {
	if i.opts.Grace > 0 {
		return i.opts.Grace
	}
	return process.DefaultGraceTimeout
}

// do enqueues fn on the run loop and waits for it to finish.
func (i *Instance) do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan struct{})}
	select {
	case i.tasks <- t:
	case <-i.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run owns the poll timer. The timer is re-armed only after a cycle
// completes, so a slow probe never stacks cycles.
func (i *Instance) run() {
	defer close(i.loopDone)
	i.poll()
	timer := time.NewTimer(i.interval())
	defer timer.Stop()
	for {
		select {
		case <-i.closed:
			return
		case t := <-i.tasks:
			t.fn()
			close(t.done)
		case <-i.kick:
			i.syncStatus()
		case <-timer.C:
			i.poll()
			timer.Reset(i.interval())
		}
	}
}

func (i *Instance) interval() time.Duration {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.rec.Ping.Interval > 0 {
		return i.rec.Ping.Interval
	}
	return 30 * time.Second
}

func (i *Instance) startLocked() error {
	if err := i.sup.Start(); err != nil {
		if !errors.Is(err, process.ErrAlreadyRunning) {
			i.publishError(err)
		}
		return err
	}
	pid := i.sup.PID()
	i.mu.Lock()
	i.pendingStop = false
	i.lastPID = pid
	i.mu.Unlock()
	snap := i.Snapshot()
	metrics.IncProcessStart(snap.Name)
	i.log.Info("process started", "pid", pid)
	i.publish(event.Event{Type: event.TypeProcessStarted, ServerID: snap.ID, Snapshot: snap, PID: pid})
	i.syncStatus()
	return nil
}

func (i *Instance) stopLocked() error {
	if !i.sup.Running() {
		return process.ErrNotRunning
	}
	i.mu.Lock()
	i.pendingStop = true
	i.mu.Unlock()
	i.syncStatus()

	err := i.sup.Stop(i.grace())
	if errors.Is(err, process.ErrStopTimeout) {
		// Process may still be alive; reflect reality rather than a
		// stuck Stopping state.
		i.mu.Lock()
		i.pendingStop = false
		i.mu.Unlock()
		i.syncStatus()
		i.log.Error("stop timed out", "grace", i.grace())
		return fmt.Errorf("%w: %v", ErrStopFailed, err)
	}
	if err != nil && !errors.Is(err, process.ErrNotRunning) {
		i.publishError(err)
		return fmt.Errorf("%w: %v", ErrStopFailed, err)
	}
	return nil
}

// poll runs one probe and publishes the result plus any status change.
func (i *Instance) poll() {
	i.mu.Lock()
	ep := ping.Endpoint{
		Host:     i.rec.Host,
		Port:     i.rec.Port,
		Protocol: i.rec.Protocol,
		Timeout:  i.rec.Ping.Timeout,
	}
	i.mu.Unlock()

	res := i.opts.Prober.Probe(context.Background(), ep)

	i.mu.Lock()
	i.lastPing = res
	i.mu.Unlock()

	snap := i.Snapshot()
	metrics.ObserveProbe(snap.Name, res.Reachable, res.Latency.Seconds())
	if res.Reachable {
		metrics.SetOnlinePlayers(snap.Name, res.OnlinePlayers)
	}
	i.publish(event.Event{Type: event.TypePingResult, ServerID: snap.ID, Snapshot: snap, Ping: &res})
	// Re-render every cycle, not only on transitions: the visible player
	// count must track reality within one poll interval.
	if !i.syncStatus() {
		i.renderSurface(snap)
	}
}

// syncStatus recomputes the derived status and, when it changed, publishes
// the transition, updates metrics, and refreshes the rendering surface.
// It reports whether a change (and so a render) happened.
func (i *Instance) syncStatus() bool {
	snap := i.Snapshot()
	i.mu.Lock()
	old := i.lastStatus
	changed := snap.Status != old
	if changed {
		i.lastStatus = snap.Status
	}
	i.mu.Unlock()
	if !changed {
		return false
	}
	metrics.SetStatus(snap.Name, string(snap.Status))
	i.log.Info("status changed", "from", old, "to", snap.Status)
	i.publish(event.Event{
		Type:      event.TypeStatusChanged,
		ServerID:  snap.ID,
		Snapshot:  snap,
		OldStatus: old,
		NewStatus: snap.Status,
	})
	i.renderSurface(snap)
	return true
}

// renderSurface pushes the snapshot to the rendering surface. Failures are
// logged and swallowed; a broken surface must not break supervision.
func (i *Instance) renderSurface(snap record.Snapshot) {
	if i.opts.Target == nil || snap.Attachment.ChannelID == "" {
		return
	}
	i.mu.Lock()
	res := i.lastPing
	i.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ref, err := i.opts.Target.CreateOrUpdate(ctx, snap.Attachment.ChannelID, snap.Attachment.MessageID, render.BuildContent(snap, res))
	if err != nil {
		i.log.Warn("surface render failed", "error", err)
		return
	}
	if ref != snap.Attachment.MessageID {
		i.mu.Lock()
		i.rec.Attachment.MessageID = ref
		i.mu.Unlock()
		i.persist()
	}
}

func (i *Instance) persist() {
	if i.opts.Persist == nil {
		return
	}
	i.mu.Lock()
	rec := i.rec
	i.mu.Unlock()
	if err := i.opts.Persist(&rec); err != nil {
		i.log.Warn("record persist failed", "error", err)
	}
}

func (i *Instance) publish(e event.Event) {
	if i.opts.Bus != nil {
		i.opts.Bus.Publish(e)
	}
}

func (i *Instance) publishError(err error) {
	snap := i.Snapshot()
	i.publish(event.Event{Type: event.TypeProcessError, ServerID: snap.ID, Snapshot: snap, Error: err.Error()})
}

// exitObserver receives supervisor callbacks. Console lines fan straight
// out on the bus; exits clear pendingStop and kick a resync instead of
// touching the loop directly, since callbacks must never block.
type exitObserver Instance

func (o *exitObserver) ProcessLine(stream, line string) {
	i := (*Instance)(o)
	t := event.TypeProcessStdout
	if stream == "stderr" {
		t = event.TypeProcessStderr
	}
	snap := i.Snapshot()
	i.publish(event.Event{Type: t, ServerID: snap.ID, Snapshot: snap, Line: line})
}

func (o *exitObserver) ProcessExit(err error) {
	i := (*Instance)(o)
	i.mu.Lock()
	i.pendingStop = false
	pid := i.lastPID
	i.mu.Unlock()
	snap := i.Snapshot()
	metrics.IncProcessStop(snap.Name)
	i.log.Info("process exited", "pid", pid, "error", err)
	i.publish(event.Event{Type: event.TypeProcessStopped, ServerID: snap.ID, Snapshot: snap, PID: pid})
	if err != nil {
		i.publish(event.Event{Type: event.TypeProcessError, ServerID: snap.ID, Snapshot: snap, Error: err.Error()})
	}
	select {
	case i.kick <- struct{}{}:
	default:
	}
}
