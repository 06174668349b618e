// Package registry owns the set of live instances: loading records from
// disk, creating and deleting servers, and dispatching permission-checked
// actions against them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warden-sh/warden/internal/event"
	"github.com/warden-sh/warden/internal/instance"
	"github.com/warden-sh/warden/internal/logger"
	"github.com/warden-sh/warden/internal/metrics"
	"github.com/warden-sh/warden/internal/ping"
	"github.com/warden-sh/warden/internal/record"
	"github.com/warden-sh/warden/internal/render"
)

var (
	// ErrNotFound means no server with the given id exists.
	ErrNotFound = errors.New("server not found")
	// ErrPermission means the actor holds none of the permissions the
	// record requires for the action.
	ErrPermission = errors.New("permission denied")
	// ErrDuplicate rejects a create colliding with an existing id.
	ErrDuplicate = errors.New("server already exists")
	// ErrUnknownAction rejects dispatches outside the fixed action set.
	ErrUnknownAction = errors.New("unknown action")
)

// PermissionAll grants every action regardless of record permission
// lists. Token-authenticated API callers hold it.
const PermissionAll = "*"

// Actor identifies who requested an action and what permissions they hold.
// The zero Actor passes only unrestricted actions.
type Actor struct {
	ID          string
	Permissions []string
}

func (a Actor) holdsAny(required []string) bool {
	if len(required) == 0 {
		return true
	}
	for _, have := range a.Permissions {
		if have == PermissionAll {
			return true
		}
		for _, want := range required {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Options configures the registry and the instances it creates.
type Options struct {
	Store  *record.Store
	Prober ping.Prober
	Bus    *event.Bus
	Target render.Target
	Log    *slog.Logger

	Console logger.Config
	Grace   time.Duration

	ZeroMaxAsOffline bool
	// StopServersOnExit terminates non-detached children on Shutdown.
	StopServersOnExit bool
}

// Registry maps server ids to running instances.
type Registry struct {
	opts Options
	log  *slog.Logger

	mu        sync.RWMutex
	instances map[string]*instance.Instance
}

func New(opts Options) *Registry {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		opts:      opts,
		log:       log,
		instances: make(map[string]*instance.Instance),
	}
}

// LoadAll reads every record file in the store and attaches an instance
// per valid record. Failures are per-file: a malformed or duplicate record
// is logged and skipped, the rest still load.
func (r *Registry) LoadAll(ctx context.Context) error {
	files, err := r.opts.Store.List()
	if err != nil {
		return fmt.Errorf("list server records: %w", err)
	}
	for _, f := range files {
		rec, err := r.opts.Store.Load(f)
		if err != nil {
			r.log.Warn("skipping unreadable record", "file", f, "error", err)
			continue
		}
		if err := rec.Validate(); err != nil {
			r.log.Warn("skipping invalid record", "file", f, "error", err)
			continue
		}
		if rec.ID == "" {
			// Write the assigned id back so the record keeps it across
			// reloads and restarts.
			rec.EnsureID()
			if err := r.opts.Store.Save(&rec); err != nil {
				r.log.Warn("skipping record, cannot persist id", "file", f, "error", err)
				continue
			}
		}
		if _, err := r.attach(rec); err != nil {
			r.log.Warn("skipping record", "file", f, "error", err)
		}
	}
	return ctx.Err()
}

// Create validates and persists a new record and attaches its instance.
func (r *Registry) Create(ctx context.Context, rec record.Record) (record.Snapshot, error) {
	if err := rec.Validate(); err != nil {
		return record.Snapshot{}, err
	}
	rec.EnsureID()
	if err := r.opts.Store.Save(&rec); err != nil {
		return record.Snapshot{}, fmt.Errorf("persist record: %w", err)
	}
	inst, err := r.attach(rec)
	if err != nil {
		return record.Snapshot{}, err
	}
	snap := inst.Snapshot()
	r.log.Info("server created", "server", snap.Name, "id", snap.ID)
	return snap, ctx.Err()
}

func (r *Registry) attach(rec record.Record) (*instance.Instance, error) {
	r.mu.Lock()
	if _, ok := r.instances[rec.ID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
	}
	inst := instance.New(rec, instance.Options{
		Prober:           r.opts.Prober,
		Bus:              r.opts.Bus,
		Target:           r.opts.Target,
		Log:              r.log,
		Console:          r.opts.Console,
		Grace:            r.opts.Grace,
		ZeroMaxAsOffline: r.opts.ZeroMaxAsOffline,
		Persist:          r.opts.Store.Save,
	})
	r.instances[rec.ID] = inst
	r.mu.Unlock()

	if r.opts.Bus != nil {
		r.opts.Bus.Publish(event.Event{
			Type:     event.TypeInstanceCreated,
			ServerID: rec.ID,
			Snapshot: inst.Snapshot(),
		})
	}
	return inst, nil
}

// Get returns the instance for id.
func (r *Registry) Get(id string) (*instance.Instance, error) {
	r.mu.RLock()
	inst, ok := r.instances[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return inst, nil
}

// List returns snapshots of all instances sorted by name.
func (r *Registry) List() []record.Snapshot {
	r.mu.RLock()
	out := make([]record.Snapshot, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Autocomplete returns servers whose name or endpoint contains the given
// fragment, case-insensitively. An empty fragment matches everything.
func (r *Registry) Autocomplete(fragment string) []record.Snapshot {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	all := r.List()
	if fragment == "" {
		return all
	}
	out := make([]record.Snapshot, 0, len(all))
	for _, snap := range all {
		if strings.Contains(strings.ToLower(snap.Name), fragment) ||
			strings.Contains(strings.ToLower(snap.Addr()), fragment) {
			out = append(out, snap)
		}
	}
	return out
}

// Update applies a patch to the identified server.
func (r *Registry) Update(ctx context.Context, id string, patch record.Patch) (record.Snapshot, error) {
	inst, err := r.Get(id)
	if err != nil {
		return record.Snapshot{}, err
	}
	return inst.Update(ctx, patch)
}

// Delete detaches the server. The instance's poll loop stops immediately;
// the child process is terminated only when the record opts in via
// stop_on_delete and is not detached. With purge set the record file and
// the rendered surface are removed too, otherwise the file stays on disk
// for a later re-attach.
func (r *Registry) Delete(ctx context.Context, id string, purge bool) error {
	r.mu.Lock()
	inst, ok := r.instances[id]
	if ok {
		delete(r.instances, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rec := inst.Record()
	snap := inst.Snapshot()
	inst.Close(rec.Launch.StopOnDelete)
	if purge {
		inst.RemoveSurface(ctx)
		if err := r.opts.Store.Delete(&rec); err != nil {
			r.log.Warn("record file removal failed", "server", rec.Name, "error", err)
		}
		metrics.Reset(rec.Name)
	}
	if r.opts.Bus != nil {
		r.opts.Bus.Publish(event.Event{Type: event.TypeInstanceDeleted, ServerID: id, Snapshot: snap})
	}
	r.log.Info("server deleted", "server", rec.Name, "id", id, "purge", purge)
	return nil
}

// ContainerRemoved handles the external deletion of a rendering container:
// every instance attached to it is deleted without purging, so its record
// file survives for a later re-attach elsewhere.
func (r *Registry) ContainerRemoved(ctx context.Context, containerRef string) {
	if containerRef == "" {
		return
	}
	r.mu.RLock()
	var ids []string
	for id, inst := range r.instances {
		if inst.Record().Attachment.ChannelID == containerRef {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	for _, id := range ids {
		if err := r.Delete(ctx, id, false); err != nil && !errors.Is(err, ErrNotFound) {
			r.log.Warn("detach after container removal failed", "id", id, "error", err)
		}
	}
}

// Dispatch runs a named action for an actor, enforcing the record's
// permission lists before any side effect.
func (r *Registry) Dispatch(ctx context.Context, id, action string, actor Actor) (record.Snapshot, error) {
	inst, err := r.Get(id)
	if err != nil {
		return record.Snapshot{}, err
	}
	rec := inst.Record()
	if required := rec.PermissionsFor(action); !actor.holdsAny(required) {
		return inst.Snapshot(), fmt.Errorf("%w: %s on %s", ErrPermission, action, id)
	}
	switch action {
	case record.ActionStart:
		err = inst.Start(ctx)
	case record.ActionStop:
		err = inst.Stop(ctx)
	case record.ActionRestart:
		err = inst.Restart(ctx)
	case record.ActionInfo:
		// snapshot only
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return inst.Snapshot(), err
}

// Shutdown closes every instance. Children are stopped only when
// StopServersOnExit is set; detached children always keep running.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	insts := make([]*instance.Instance, 0, len(r.instances))
	for id, inst := range r.instances {
		insts = append(insts, inst)
		delete(r.instances, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, inst := range insts {
		wg.Add(1)
		go func(in *instance.Instance) {
			defer wg.Done()
			in.Close(r.opts.StopServersOnExit)
		}(inst)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		r.log.Warn("shutdown cut short", "error", ctx.Err())
	}
}
