package instance

import (
	"context"
	"os/exec"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-sh/warden/internal/event"
	"github.com/warden-sh/warden/internal/ping"
	"github.com/warden-sh/warden/internal/process"
	"github.com/warden-sh/warden/internal/record"
	"github.com/warden-sh/warden/internal/render"
)

// stubProber returns whatever result the test sets, so status transitions
// can be driven without real game servers.
type stubProber struct {
	mu  sync.Mutex
	res ping.Result
}

func (s *stubProber) set(res ping.Result) {
	s.mu.Lock()
	s.res = res
	s.mu.Unlock()
}

func (s *stubProber) Probe(context.Context, ping.Endpoint) ping.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := s.res
	if res.PingedAt.IsZero() {
		res.PingedAt = time.Now()
	}
	return res
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based instance tests are unix-only")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func testRecord(t *testing.T) record.Record {
	return record.Record{
		ID:       "srv-1",
		Name:     "survival",
		Host:     "127.0.0.1",
		Port:     25565,
		Protocol: record.ProtocolJava,
		Launch: record.Launch{
			WorkDir:    t.TempDir(),
			Command:    "sleep",
			Args:       []string{"30"},
			StopSignal: "SIGTERM",
		},
		// long interval keeps the timer out of the way; tests poll manually
		Ping: record.PingConfig{Interval: time.Hour, Timeout: time.Second},
	}
}

func newTestInstance(t *testing.T, rec record.Record, opts Options) (*Instance, *stubProber, *event.Bus) {
	t.Helper()
	prober := &stubProber{}
	bus := event.NewBus()
	opts.Prober = prober
	opts.Bus = bus
	opts.Grace = 5 * time.Second
	inst := New(rec, opts)
	t.Cleanup(func() {
		inst.Close(true)
		bus.Close()
	})
	return inst, prober, bus
}

func waitEvent(t *testing.T, sub *event.Subscription, typ event.Type) event.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-sub.C:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestLifecycleStatusTransitions(t *testing.T) {
	requireUnix(t)
	inst, prober, bus := newTestInstance(t, testRecord(t), Options{})
	sub := bus.Subscribe(event.TypeStatusChanged)
	defer sub.Unsubscribe()

	ctx := context.Background()
	assert.Equal(t, record.StatusOffline, inst.Snapshot().Status)

	// spawn: process up but endpoint not answering yet
	require.NoError(t, inst.Start(ctx))
	e := waitEvent(t, sub, event.TypeStatusChanged)
	assert.Equal(t, record.StatusOffline, e.OldStatus)
	assert.Equal(t, record.StatusStarting, e.NewStatus)

	// endpoint comes up
	prober.set(ping.Result{Reachable: true, OnlinePlayers: 2, MaxPlayers: 20})
	require.NoError(t, inst.Poll(ctx))
	e = waitEvent(t, sub, event.TypeStatusChanged)
	assert.Equal(t, record.StatusOnline, e.NewStatus)

	// endpoint goes dark again, then the process is stopped
	prober.set(ping.Result{})
	require.NoError(t, inst.Poll(ctx))
	e = waitEvent(t, sub, event.TypeStatusChanged)
	assert.Equal(t, record.StatusStarting, e.NewStatus)

	require.NoError(t, inst.Stop(ctx))
	// Stopping is published before the grace wait begins
	e = waitEvent(t, sub, event.TypeStatusChanged)
	assert.Equal(t, record.StatusStopping, e.NewStatus)
	e = waitEvent(t, sub, event.TypeStatusChanged)
	assert.Equal(t, record.StatusOffline, e.NewStatus)
}

func TestStartEmitsProcessStarted(t *testing.T) {
	requireUnix(t)
	inst, _, bus := newTestInstance(t, testRecord(t), Options{})
	sub := bus.Subscribe(event.TypeProcessStarted, event.TypeProcessStopped)
	defer sub.Unsubscribe()

	ctx := context.Background()
	require.NoError(t, inst.Start(ctx))
	e := waitEvent(t, sub, event.TypeProcessStarted)
	assert.Equal(t, "srv-1", e.ServerID)
	assert.NotZero(t, e.PID)

	require.NoError(t, inst.Stop(ctx))
	stopped := waitEvent(t, sub, event.TypeProcessStopped)
	assert.Equal(t, e.PID, stopped.PID)
}

func TestDoubleStartAndStopStopped(t *testing.T) {
	requireUnix(t)
	inst, _, _ := newTestInstance(t, testRecord(t), Options{})
	ctx := context.Background()

	assert.ErrorIs(t, inst.Stop(ctx), process.ErrNotRunning)

	require.NoError(t, inst.Start(ctx))
	assert.ErrorIs(t, inst.Start(ctx), process.ErrAlreadyRunning)
	require.NoError(t, inst.Stop(ctx))
	assert.ErrorIs(t, inst.Stop(ctx), process.ErrNotRunning)
}

func TestRestart(t *testing.T) {
	requireUnix(t)
	inst, _, _ := newTestInstance(t, testRecord(t), Options{})
	ctx := context.Background()

	// restart on a stopped server just starts it
	require.NoError(t, inst.Restart(ctx))
	first := inst.Snapshot()
	assert.Equal(t, record.StatusStarting, first.Status)

	require.NoError(t, inst.Restart(ctx))
	assert.Equal(t, record.StatusStarting, inst.Snapshot().Status)
	require.NoError(t, inst.Stop(ctx))
}

func TestUnattachedWithoutProcess(t *testing.T) {
	inst, prober, _ := newTestInstance(t, testRecord(t), Options{})
	prober.set(ping.Result{Reachable: true, MaxPlayers: 10})
	require.NoError(t, inst.Poll(context.Background()))
	assert.Equal(t, record.StatusUnattached, inst.Snapshot().Status)
}

func TestZeroMaxAsOffline(t *testing.T) {
	inst, prober, _ := newTestInstance(t, testRecord(t), Options{ZeroMaxAsOffline: true})
	prober.set(ping.Result{Reachable: true, MaxPlayers: 0})
	require.NoError(t, inst.Poll(context.Background()))
	assert.Equal(t, record.StatusOffline, inst.Snapshot().Status)

	prober.set(ping.Result{Reachable: true, MaxPlayers: 20})
	require.NoError(t, inst.Poll(context.Background()))
	assert.Equal(t, record.StatusUnattached, inst.Snapshot().Status)
}

func TestUpdateImmutableWhileRunning(t *testing.T) {
	requireUnix(t)
	inst, _, _ := newTestInstance(t, testRecord(t), Options{})
	ctx := context.Background()
	require.NoError(t, inst.Start(ctx))

	port := 25600
	_, err := inst.Update(ctx, record.Patch{Port: &port})
	assert.ErrorIs(t, err, ErrMutableWhileRunning)

	// mutable fields still go through
	desc := "the main world"
	snap, err := inst.Update(ctx, record.Patch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "the main world", snap.Description)

	require.NoError(t, inst.Stop(ctx))
	snap, err = inst.Update(ctx, record.Patch{Port: &port})
	require.NoError(t, err)
	assert.Equal(t, 25600, snap.Port)
}

func TestUpdateRevalidates(t *testing.T) {
	inst, _, _ := newTestInstance(t, testRecord(t), Options{})
	bad := ""
	_, err := inst.Update(context.Background(), record.Patch{Name: &bad})
	assert.ErrorIs(t, err, record.ErrValidation)
	// the record is unchanged after a rejected patch
	assert.Equal(t, "survival", inst.Record().Name)
}

func TestUpdatePersists(t *testing.T) {
	var (
		mu    sync.Mutex
		saved []record.Record
	)
	persist := func(r *record.Record) error {
		mu.Lock()
		saved = append(saved, *r)
		mu.Unlock()
		return nil
	}
	inst, _, _ := newTestInstance(t, testRecord(t), Options{Persist: persist})
	name := "renamed"
	_, err := inst.Update(context.Background(), record.Patch{Name: &name})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, saved)
	assert.Equal(t, "renamed", saved[len(saved)-1].Name)
}

func TestRenderSurfaceFollowsStatus(t *testing.T) {
	target := render.NewMemory()
	rec := testRecord(t)
	rec.Attachment.ChannelID = "chan-1"

	var (
		mu   sync.Mutex
		last record.Record
	)
	persist := func(r *record.Record) error {
		mu.Lock()
		last = *r
		mu.Unlock()
		return nil
	}
	inst, prober, _ := newTestInstance(t, rec, Options{Target: target, Persist: persist})

	prober.set(ping.Result{Reachable: true, MaxPlayers: 20})
	require.NoError(t, inst.Poll(context.Background()))

	mu.Lock()
	ref := last.Attachment.MessageID
	mu.Unlock()
	require.NotEmpty(t, ref, "surface assigns a message ref on first render")

	content, ok := target.Message(ref)
	require.True(t, ok)
	assert.Contains(t, content.Body, "survival")
	// unattached endpoints offer no affordances
	assert.Empty(t, content.Actions)
}

func TestRenderSurfaceCreatedForOfflineServer(t *testing.T) {
	target := render.NewMemory()
	rec := testRecord(t)
	rec.Attachment.ChannelID = "chan-1"
	inst, _, _ := newTestInstance(t, rec, Options{Target: target})

	// prober stays offline; the poll must still create the message
	require.NoError(t, inst.Poll(context.Background()))

	attachment := inst.Record().Attachment
	require.NotEmpty(t, attachment.MessageID)
	content, ok := target.Message(attachment.MessageID)
	require.True(t, ok)
	assert.Contains(t, content.Body, "Offline")
	assert.Empty(t, content.Players)
}

func TestRenderSurfaceTracksPlayerCounts(t *testing.T) {
	target := render.NewMemory()
	rec := testRecord(t)
	rec.Attachment.ChannelID = "chan-1"
	inst, prober, _ := newTestInstance(t, rec, Options{Target: target})

	prober.set(ping.Result{Reachable: true, OnlinePlayers: 3, MaxPlayers: 20, Version: "1.20.4"})
	require.NoError(t, inst.Poll(context.Background()))

	ref := inst.Record().Attachment.MessageID
	require.NotEmpty(t, ref)
	content, ok := target.Message(ref)
	require.True(t, ok)
	assert.Equal(t, "3/20", content.Players)
	assert.Equal(t, "1.20.4", content.Version)

	// no status transition here, the redraw still happens every poll
	prober.set(ping.Result{Reachable: true, OnlinePlayers: 5, MaxPlayers: 20, Version: "1.20.4"})
	require.NoError(t, inst.Poll(context.Background()))

	content, ok = target.Message(ref)
	require.True(t, ok)
	assert.Equal(t, "5/20", content.Players)
}

func TestConsoleRequiresRunning(t *testing.T) {
	inst, _, _ := newTestInstance(t, testRecord(t), Options{})
	assert.ErrorIs(t, inst.Console("say hi"), process.ErrNotRunning)
}

func TestCloseStopsOperations(t *testing.T) {
	inst, _, _ := newTestInstance(t, testRecord(t), Options{})
	inst.Close(false)
	assert.ErrorIs(t, inst.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, inst.Poll(context.Background()), ErrClosed)
	// closing again is harmless
	inst.Close(false)
}

func TestProcessLinesReachTheBus(t *testing.T) {
	requireUnix(t)
	rec := testRecord(t)
	rec.Launch.Command = "sh"
	rec.Launch.Args = []string{"-c", "echo ready"}
	inst, _, bus := newTestInstance(t, rec, Options{})
	sub := bus.Subscribe(event.TypeProcessStdout)
	defer sub.Unsubscribe()

	require.NoError(t, inst.Start(context.Background()))
	e := waitEvent(t, sub, event.TypeProcessStdout)
	assert.Equal(t, "ready", e.Line)
}
