package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRecord() Record {
	return Record{
		Name:     "survival",
		Host:     "localhost",
		Port:     25565,
		Protocol: ProtocolJava,
		Launch: Launch{
			WorkDir: "/srv/survival",
			Command: "java",
			Args:    []string{"-jar", "server.jar"},
		},
		Ping: PingConfig{Interval: 30 * time.Second, Timeout: 5 * time.Second},
	}
}

func TestValidate(t *testing.T) {
	rec := validRecord()
	require.NoError(t, rec.Validate())

	cases := []struct {
		name   string
		mutate func(*Record)
	}{
		{"empty name", func(r *Record) { r.Name = "  " }},
		{"empty host", func(r *Record) { r.Host = "" }},
		{"port zero", func(r *Record) { r.Port = 0 }},
		{"port too large", func(r *Record) { r.Port = 70000 }},
		{"missing protocol", func(r *Record) { r.Protocol = "" }},
		{"bogus protocol", func(r *Record) { r.Protocol = "quic" }},
		{"missing command", func(r *Record) { r.Launch.Command = "" }},
		{"missing workdir", func(r *Record) { r.Launch.WorkDir = "" }},
		{"zero interval", func(r *Record) { r.Ping.Interval = 0 }},
		{"zero timeout", func(r *Record) { r.Ping.Timeout = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bad := validRecord()
			tc.mutate(&bad)
			err := bad.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestEnsureID(t *testing.T) {
	rec := validRecord()
	rec.EnsureID()
	require.NotEmpty(t, rec.ID)
	id := rec.ID
	rec.EnsureID()
	assert.Equal(t, id, rec.ID, "EnsureID must not replace an existing id")
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		running, reachable, pendingStop bool
		want                            Status
	}{
		{false, false, false, StatusOffline},
		{true, false, false, StatusStarting},
		{true, true, false, StatusOnline},
		{true, true, true, StatusStopping},
		{true, false, true, StatusStopping},
		{false, true, false, StatusUnattached},
		// pendingStop without a process cannot hold; reachability decides
		{false, true, true, StatusUnattached},
		{false, false, true, StatusOffline},
	}
	for _, tc := range cases {
		got := DeriveStatus(tc.running, tc.reachable, tc.pendingStop)
		assert.Equalf(t, tc.want, got, "running=%v reachable=%v pendingStop=%v",
			tc.running, tc.reachable, tc.pendingStop)
	}
}

func TestPermissionsFor(t *testing.T) {
	rec := validRecord()
	rec.Permissions = Permissions{
		Start: []string{"mods"},
		Stop:  []string{"admins"},
	}
	assert.Equal(t, []string{"mods"}, rec.PermissionsFor(ActionStart))
	assert.Equal(t, []string{"admins"}, rec.PermissionsFor(ActionStop))
	// restart terminates the process, so it is guarded like stop
	assert.Equal(t, []string{"admins"}, rec.PermissionsFor(ActionRestart))
	assert.Nil(t, rec.PermissionsFor(ActionInfo))
}

func TestMerge(t *testing.T) {
	rec := validRecord()
	rec.ID = "id-1"
	name := "creative"
	port := 25566
	merged := rec.Merge(Patch{Name: &name, Port: &port})

	assert.Equal(t, "creative", merged.Name)
	assert.Equal(t, 25566, merged.Port)
	// untouched fields carry over
	assert.Equal(t, rec.Host, merged.Host)
	assert.Equal(t, rec.Launch, merged.Launch)
	// the original is not mutated
	assert.Equal(t, "survival", rec.Name)
}

func TestPatchRequiresRestart(t *testing.T) {
	name := "x"
	port := 1234
	assert.False(t, Patch{Name: &name}.RequiresRestart())
	assert.True(t, Patch{Port: &port}.RequiresRestart())
	assert.True(t, Patch{Launch: &Launch{}}.RequiresRestart())

	assert.True(t, Patch{Attachment: &Attachment{}}.RequiresReattach())
	assert.False(t, Patch{Name: &name}.RequiresReattach())
}
