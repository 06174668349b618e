//go:build windows

package process

import (
	"os/exec"
	"syscall"
)

const (
	CREATE_NEW_PROCESS_GROUP = 0x00000200
	DETACHED_PROCESS         = 0x00000008
)

// configureSysProcAttr creates a new process group for termination; a
// detached child additionally drops the parent's console.
func configureSysProcAttr(cmd *exec.Cmd, spec Spec) {
	flags := uint32(CREATE_NEW_PROCESS_GROUP)
	if spec.Detached {
		flags |= DETACHED_PROCESS
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: flags}
}
