//go:build !windows

package process

import "syscall"

const killSignal = syscall.SIGKILL

// killProcess sends a signal to a Unix process (negative pid targets the
// process group).
func killProcess(pid int, signal syscall.Signal) error {
	return syscall.Kill(pid, signal)
}

// processExists checks whether a process is alive.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// parseSignal maps a record's stop_signal name to a signal. Unknown or
// empty names fall back to SIGINT, the console Ctrl-C most game servers
// treat as a polite shutdown.
func parseSignal(name string) syscall.Signal {
	switch name {
	case "SIGTERM":
		return syscall.SIGTERM
	case "SIGKILL":
		return syscall.SIGKILL
	case "SIGHUP":
		return syscall.SIGHUP
	case "SIGQUIT":
		return syscall.SIGQUIT
	case "SIGUSR1":
		return syscall.SIGUSR1
	case "SIGUSR2":
		return syscall.SIGUSR2
	default:
		return syscall.SIGINT
	}
}
