package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-sh/warden/internal/record"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8420", cfg.Listen)
	assert.Equal(t, "servers", cfg.ServersDir)
	assert.Equal(t, 10*time.Second, cfg.GraceTimeout)
}

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Listen, cfg.Listen)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.toml")
	content := `
listen = ":9000"
auth_token = "hunter2"
servers_dir = "/var/lib/warden/servers"
nats_url = "nats://127.0.0.1:4222"
history_dsn = "sqlite::memory:"
ping_workers = 16
grace_timeout = "20s"
zero_max_as_offline = true
stop_servers_on_exit = true

[ping_defaults]
interval = "45s"
timeout = "3s"

[log]
level = "debug"
color = false

[console]
dir = "/var/log/warden"
max_size_mb = 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "hunter2", cfg.AuthToken)
	assert.Equal(t, "/var/lib/warden/servers", cfg.ServersDir)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, 16, cfg.PingWorkers)
	assert.Equal(t, 20*time.Second, cfg.GraceTimeout)
	assert.True(t, cfg.ZeroMaxAsOffline)
	assert.True(t, cfg.StopServersOnExit)
	assert.Equal(t, 45*time.Second, cfg.PingDefaults.Interval)
	assert.Equal(t, 3*time.Second, cfg.PingDefaults.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Color)
	assert.Equal(t, "/var/log/warden", cfg.Console.Dir)
	assert.Equal(t, 50, cfg.Console.MaxSizeMB)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.toml")
	require.NoError(t, os.WriteFile(path, []byte(`ping_workers = -1`), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestApplyPingDefaults(t *testing.T) {
	cfg := Default()
	rec := record.Record{}
	cfg.ApplyPingDefaults(&rec)
	assert.Equal(t, cfg.PingDefaults.Interval, rec.Ping.Interval)
	assert.Equal(t, cfg.PingDefaults.Timeout, rec.Ping.Timeout)

	rec = record.Record{Ping: record.PingConfig{Interval: time.Minute, Timeout: time.Second}}
	cfg.ApplyPingDefaults(&rec)
	assert.Equal(t, time.Minute, rec.Ping.Interval)
	assert.Equal(t, time.Second, rec.Ping.Timeout)
}
