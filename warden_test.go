package warden

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-sh/warden/internal/record"
	"github.com/warden-sh/warden/internal/registry"
	"github.com/warden-sh/warden/internal/render"
)

func testConfig(t *testing.T) Config {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.ServersDir = t.TempDir()
	cfg.Console.Dir = t.TempDir()
	return cfg
}

func testServerRecord(t *testing.T, name string) Record {
	return Record{
		Name:     name,
		Host:     "127.0.0.1",
		Port:     25565,
		Protocol: record.ProtocolJava,
		Launch: record.Launch{
			WorkDir:    t.TempDir(),
			Command:    "sleep",
			Args:       []string{"30"},
			StopSignal: "SIGTERM",
		},
	}
}

func newTestWarden(t *testing.T, opts ...Option) *Warden {
	t.Helper()
	w, err := New(context.Background(), testConfig(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		w.Shutdown(ctx)
	})
	return w
}

func TestNewAndShutdown(t *testing.T) {
	w := newTestWarden(t)
	assert.NotNil(t, w.Registry())
	assert.NotNil(t, w.Bus())
	assert.Empty(t, w.Servers())
}

func TestCreateAppliesPingDefaults(t *testing.T) {
	w := newTestWarden(t)
	snap, err := w.CreateServer(context.Background(), testServerRecord(t, "survival"))
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 30*time.Second, snap.Ping.Interval)
	assert.Equal(t, 5*time.Second, snap.Ping.Timeout)
	assert.Len(t, w.Servers(), 1)
}

func TestDispatchInfo(t *testing.T) {
	w := newTestWarden(t)
	snap, err := w.CreateServer(context.Background(), testServerRecord(t, "survival"))
	require.NoError(t, err)

	actor := Actor{ID: "tester", Permissions: []string{registry.PermissionAll}}
	got, err := w.Dispatch(context.Background(), snap.ID, record.ActionInfo, actor)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, record.StatusOffline, got.Status)
}

func TestUpdateAndDelete(t *testing.T) {
	w := newTestWarden(t)
	ctx := context.Background()
	snap, err := w.CreateServer(ctx, testServerRecord(t, "survival"))
	require.NoError(t, err)

	desc := "the main world"
	updated, err := w.UpdateServer(ctx, snap.ID, Patch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	require.NoError(t, w.DeleteServer(ctx, snap.ID, true))
	assert.Empty(t, w.Servers())
}

func TestServersReloadAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	w, err := New(ctx, cfg)
	require.NoError(t, err)
	_, err = w.CreateServer(ctx, testServerRecord(t, "survival"))
	require.NoError(t, err)
	w.Shutdown(ctx)

	reopened, err := New(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Shutdown(ctx)
	require.Len(t, reopened.Servers(), 1)
	assert.Equal(t, "survival", reopened.Servers()[0].Name)
}

func TestContainerRemovedDetaches(t *testing.T) {
	surface := render.NewMemory()
	w := newTestWarden(t, WithRenderTarget(surface))
	ctx := context.Background()

	rec := testServerRecord(t, "survival")
	rec.Attachment = record.Attachment{ChannelID: "chan-1"}
	snap, err := w.CreateServer(ctx, rec)
	require.NoError(t, err)

	w.ContainerRemoved(ctx, "chan-1")
	assert.Empty(t, w.Servers())

	// non-purging: the record file survives for a later re-attach
	reopened, err := New(ctx, w.cfg)
	require.NoError(t, err)
	defer reopened.Shutdown(ctx)
	require.Len(t, reopened.Servers(), 1)
	assert.Equal(t, snap.ID, reopened.Servers()[0].ID)
}
