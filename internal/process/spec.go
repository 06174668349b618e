package process

import (
	"os/exec"
	"time"

	"github.com/warden-sh/warden/internal/logger"
)

// DefaultGraceTimeout is the window a stopped process gets to confirm
// termination before Stop reports failure.
const DefaultGraceTimeout = 10 * time.Second

// Spec describes one child process to supervise.
type Spec struct {
	Name       string        `json:"name"`
	Command    string        `json:"command"`
	Args       []string      `json:"args,omitempty"`
	WorkDir    string        `json:"work_dir"`
	Env        []string      `json:"env,omitempty"`
	StopSignal string        `json:"stop_signal,omitempty"` // e.g. "SIGINT"; default SIGINT
	Detached   bool          `json:"detached,omitempty"`    // child survives supervisor exit
	Console    logger.Config `json:"console"`               // rotated console capture files
}

// BuildCommand constructs the *exec.Cmd for this spec. Arguments are
// passed verbatim; no shell is involved.
func (s *Spec) BuildCommand() *exec.Cmd {
	// #nosec G204 -- command comes from an operator-managed server record
	cmd := exec.Command(s.Command, s.Args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	configureSysProcAttr(cmd, *s)
	return cmd
}
