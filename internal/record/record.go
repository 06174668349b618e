package record

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Protocol selects the wire dialect used to probe a server.
type Protocol string

const (
	ProtocolJava    Protocol = "java"
	ProtocolBedrock Protocol = "bedrock"
)

// Action names accepted by the registry dispatch path.
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionRestart = "restart"
	ActionInfo    = "info"
)

// ErrValidation marks a malformed or incomplete server record. It is
// returned before any process or I/O side effect happens.
var ErrValidation = errors.New("invalid server record")

// Launch describes how the child process is spawned and terminated.
type Launch struct {
	WorkDir    string   `json:"work_dir" mapstructure:"work_dir"`
	Command    string   `json:"command" mapstructure:"command"`
	Args       []string `json:"args,omitempty" mapstructure:"args"`
	StopSignal string   `json:"stop_signal,omitempty" mapstructure:"stop_signal"`
	// Detach leaves the child running when the supervisor itself exits.
	Detach       bool `json:"detach,omitempty" mapstructure:"detach"`
	StopOnDelete bool `json:"stop_on_delete,omitempty" mapstructure:"stop_on_delete"`
}

// PingConfig bounds the per-server polling loop.
type PingConfig struct {
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// Permissions lists the permission strings an actor must hold per action.
// A nil/empty list means the action is unrestricted.
type Permissions struct {
	Start []string `json:"start,omitempty" mapstructure:"start"`
	Stop  []string `json:"stop,omitempty" mapstructure:"stop"`
}

// Attachment references the rendering surface showing this server's status.
type Attachment struct {
	ChannelID string `json:"channel_id,omitempty" mapstructure:"channel_id"`
	MessageID string `json:"message_id,omitempty" mapstructure:"message_id"`
}

// Record is the persisted, externally editable definition of one server.
// ID is unique within a registry. Endpoint and Launch are immutable while
// the process is running; mutating them requires a stop/restart.
type Record struct {
	ID          string `json:"id" mapstructure:"id"`
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" mapstructure:"description"`

	Host     string   `json:"host" mapstructure:"host"`
	Port     int      `json:"port" mapstructure:"port"`
	Protocol Protocol `json:"protocol" mapstructure:"protocol"`

	Launch      Launch            `json:"launch" mapstructure:"launch"`
	Ping        PingConfig        `json:"ping" mapstructure:"ping"`
	Permissions Permissions       `json:"permissions,omitempty" mapstructure:"permissions"`
	Messages    map[string]string `json:"messages,omitempty" mapstructure:"messages"`
	Attachment  Attachment        `json:"attachment,omitempty" mapstructure:"attachment"`

	// File is the path this record was loaded from; not serialized.
	File string `json:"-" mapstructure:"-"`
}

// Addr returns host:port for dialing.
func (r *Record) Addr() string { return fmt.Sprintf("%s:%d", r.Host, r.Port) }

// EnsureID assigns a fresh id when the record has none.
func (r *Record) EnsureID() {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
}

// PermissionsFor returns the permission list guarding the given action.
// Restart is guarded by the stop permission since it terminates the process.
func (r *Record) PermissionsFor(action string) []string {
	switch action {
	case ActionStart:
		return r.Permissions.Start
	case ActionStop, ActionRestart:
		return r.Permissions.Stop
	default:
		return nil
	}
}

// Validate rejects malformed records before any side effect. All failures
// wrap ErrValidation so callers can map them to a 400.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrValidation)
	}
	if r.Port <= 0 || r.Port > 65535 {
		return fmt.Errorf("%w: port must be in 1..65535", ErrValidation)
	}
	switch r.Protocol {
	case ProtocolJava, ProtocolBedrock:
	case "":
		return fmt.Errorf("%w: protocol is required", ErrValidation)
	default:
		return fmt.Errorf("%w: protocol must be %q or %q", ErrValidation, ProtocolJava, ProtocolBedrock)
	}
	if strings.TrimSpace(r.Launch.Command) == "" {
		return fmt.Errorf("%w: launch.command is required", ErrValidation)
	}
	if strings.TrimSpace(r.Launch.WorkDir) == "" {
		return fmt.Errorf("%w: launch.work_dir is required", ErrValidation)
	}
	if r.Ping.Interval <= 0 {
		return fmt.Errorf("%w: ping.interval must be positive", ErrValidation)
	}
	if r.Ping.Timeout <= 0 {
		return fmt.Errorf("%w: ping.timeout must be positive", ErrValidation)
	}
	return nil
}

// Merge overlays non-zero fields of patch onto a copy of r and returns it.
// Used by the update path; the result must be re-validated by the caller.
func (r Record) Merge(patch Patch) Record {
	out := r
	if patch.Name != nil {
		out.Name = *patch.Name
	}
	if patch.Description != nil {
		out.Description = *patch.Description
	}
	if patch.Host != nil {
		out.Host = *patch.Host
	}
	if patch.Port != nil {
		out.Port = *patch.Port
	}
	if patch.Protocol != nil {
		out.Protocol = *patch.Protocol
	}
	if patch.Launch != nil {
		out.Launch = *patch.Launch
	}
	if patch.Ping != nil {
		out.Ping = *patch.Ping
	}
	if patch.Permissions != nil {
		out.Permissions = *patch.Permissions
	}
	if patch.Messages != nil {
		out.Messages = patch.Messages
	}
	if patch.Attachment != nil {
		out.Attachment = *patch.Attachment
	}
	return out
}

// Patch is a partial record used by update operations. Pointer fields
// distinguish "absent" from "set to zero".
type Patch struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Host        *string           `json:"host,omitempty"`
	Port        *int              `json:"port,omitempty"`
	Protocol    *Protocol         `json:"protocol,omitempty"`
	Launch      *Launch           `json:"launch,omitempty"`
	Ping        *PingConfig       `json:"ping,omitempty"`
	Permissions *Permissions      `json:"permissions,omitempty"`
	Messages    map[string]string `json:"messages,omitempty"`
	Attachment  *Attachment       `json:"attachment,omitempty"`
}

// RequiresRestart reports whether applying the patch changes fields that
// are immutable while the process runs.
func (p Patch) RequiresRestart() bool {
	return p.Launch != nil || p.Host != nil || p.Port != nil || p.Protocol != nil
}

// RequiresReattach reports whether applying the patch moves the rendering
// surface or the polled endpoint.
func (p Patch) RequiresReattach() bool {
	return p.Attachment != nil || p.Host != nil || p.Port != nil
}
