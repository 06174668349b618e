// Package render defines the rendering-surface contract consumed by the
// supervision core and builds the status content shown there. The surface
// itself (a chat message, a dashboard tile) lives outside this module.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/warden-sh/warden/internal/ping"
	"github.com/warden-sh/warden/internal/record"
)

// Target is the rendering surface. CreateOrUpdate upserts the content in
// the given container and returns the message reference; Delete removes a
// previously created message. Failures are best-effort for callers: a
// render failure must never abort a poll cycle or a command.
type Target interface {
	CreateOrUpdate(ctx context.Context, containerRef, messageRef string, content Content) (string, error)
	Delete(ctx context.Context, messageRef string) error
}

// ActionKind identifies a rendered affordance.
type ActionKind string

const (
	ActionStart ActionKind = "start"
	ActionStop  ActionKind = "stop"
)

// Action is a start/stop affordance offered next to the status body.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Label string     `json:"label"`
}

// Content is what the surface displays for one server. Players and
// Version are filled from the last probe while the endpoint answers.
type Content struct {
	Body    string   `json:"body"`
	Players string   `json:"players,omitempty"` // "3/20"
	Version string   `json:"version,omitempty"`
	Actions []Action `json:"actions,omitempty"`
}

// Default message templates per status, used when a record carries none.
var defaultMessages = map[string]string{
	string(record.StatusOffline):    "**{server_name}** is {server_status}",
	string(record.StatusStarting):   "**{server_name}** is {server_status}...",
	string(record.StatusOnline):     "**{server_name}** is {server_status}",
	string(record.StatusStopping):   "**{server_name}** is {server_status}...",
	string(record.StatusUnattached): "**{server_name}**: something else is answering on this endpoint",
}

// ReplacePlaceholders substitutes the {server_*} placeholders in s.
func ReplacePlaceholders(s string, snap record.Snapshot) string {
	r := strings.NewReplacer(
		"{server_id}", snap.ID,
		"{server_name}", snap.Name,
		"{server_description}", snap.Description,
		"{server_status}", string(snap.Status),
	)
	return r.Replace(s)
}

// BuildContent selects the template for the snapshot's status, substitutes
// placeholders, carries the probe's player count and version while the
// endpoint answers, and attaches the affordance the status allows: Start
// when offline, Stop when online, none while transitioning or unattached.
func BuildContent(snap record.Snapshot, res ping.Result) Content {
	tmpl := ""
	if snap.Messages != nil {
		tmpl = snap.Messages[strings.ToLower(string(snap.Status))]
	}
	if tmpl == "" {
		tmpl = defaultMessages[string(snap.Status)]
	}
	content := Content{Body: ReplacePlaceholders(tmpl, snap)}
	if res.Reachable {
		content.Players = fmt.Sprintf("%d/%d", res.OnlinePlayers, res.MaxPlayers)
		content.Version = res.Version
	}
	switch snap.Status {
	case record.StatusOffline:
		content.Actions = []Action{{Kind: ActionStart, Label: "Start"}}
	case record.StatusOnline:
		content.Actions = []Action{{Kind: ActionStop, Label: "Stop"}}
	}
	return content
}
