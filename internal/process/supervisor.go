// Package process owns the lifecycle of one OS child per logical server:
// spawn, console capture, signal-based termination with a bounded wait,
// and exactly-once exit bookkeeping.
package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"
)

var (
	// ErrAlreadyRunning is returned by Start when a live handle exists.
	ErrAlreadyRunning = errors.New("process already running")
	// ErrNotRunning is returned by operations requiring a live handle.
	ErrNotRunning = errors.New("process not running")
	// ErrStopTimeout means the stop signal was delivered but termination
	// was not confirmed within the grace window. The process may still be
	// alive; the caller may force-kill out of band.
	ErrStopTimeout = errors.New("process did not exit within grace timeout")
)

// Sink receives console output and exit notifications. Calls arrive from
// the supervisor's internal goroutines; implementations must be safe for
// concurrent use and must not block.
type Sink interface {
	ProcessLine(stream string, line string) // stream is "stdout" or "stderr"
	ProcessExit(err error)
}

// Supervisor manages one process generation at a time. All exported
// methods are safe for concurrent use; the exit path clears the handle
// exactly once even when close and exit signals race.
type Supervisor struct {
	mu       sync.Mutex
	spec     Spec
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	waitDone chan struct{} // closed exactly once when the process is reaped
	exited   bool
	exitErr  error
	killed   bool
	sink     Sink

	outCloser io.WriteCloser
	errCloser io.WriteCloser
}

func NewSupervisor(spec Spec, sink Sink) *Supervisor {
	return &Supervisor{spec: spec, sink: sink}
}

// UpdateSpec replaces the spec. It only affects the next Start.
func (s *Supervisor) UpdateSpec(spec Spec) {
	s.mu.Lock()
	s.spec = spec
	s.mu.Unlock()
}

// Running reports whether a handle exists, has not exited, and was not
// explicitly killed.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil && !s.exited && !s.killed
}

// PID returns the child's pid, or zero when not running.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Detached reports whether the child outlives the supervisor process.
func (s *Supervisor) Detached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec.Detached
}

// Start spawns the child and registers console and exit observers for
// this generation. It fails with ErrAlreadyRunning while a handle exists.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.cmd != nil && !s.exited && !s.killed {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	spec := s.spec
	s.mu.Unlock()

	cmd := spec.BuildCommand()
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	outW, errW, _ := spec.Console.Writers(spec.Name)

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		closeWriter(outW)
		closeWriter(errW)
		return fmt.Errorf("spawn %s: %w", spec.Name, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.waitDone = make(chan struct{})
	s.exited = false
	s.exitErr = nil
	s.killed = false
	s.outCloser = outW
	s.errCloser = errW
	sink := s.sink
	s.mu.Unlock()

	var scanners sync.WaitGroup
	scanners.Add(2)
	go s.scanStream("stdout", stdout, outW, sink, &scanners)
	go s.scanStream("stderr", stderr, errW, sink, &scanners)
	go s.reap(cmd, sink, &scanners)
	return nil
}

func (s *Supervisor) scanStream(stream string, r io.Reader, file io.WriteCloser, sink Sink, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if file != nil {
			_, _ = file.Write([]byte(line + "\n"))
		}
		if sink != nil {
			sink.ProcessLine(stream, line)
		}
	}
}

// reap waits for the process and clears the handle exactly once. Scanners
// are drained first so no console line is reported after the exit event.
func (s *Supervisor) reap(cmd *exec.Cmd, sink Sink, scanners *sync.WaitGroup) {
	scanners.Wait()
	err := cmd.Wait()

	s.mu.Lock()
	if s.cmd != cmd || s.exited {
		// A racing observer already accounted for this generation.
		s.mu.Unlock()
		return
	}
	s.exited = true
	s.exitErr = err
	done := s.waitDone
	s.closeWritersLocked()
	s.mu.Unlock()

	close(done)
	if sink != nil {
		sink.ProcessExit(err)
	}
}

// Stop sends the configured signal and waits up to grace for the process
// to confirm termination. Stopping an already-exited process succeeds
// without side effects.
func (s *Supervisor) Stop(grace time.Duration) error {
	if grace <= 0 {
		grace = DefaultGraceTimeout
	}
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.exited || s.killed {
		s.mu.Unlock()
		return nil
	}
	pid := s.cmd.Process.Pid
	sig := parseSignal(s.spec.StopSignal)
	name := s.spec.Name
	done := s.waitDone
	s.mu.Unlock()

	// Signal the whole process group so wrapper shells take their
	// children down with them.
	if err := killProcess(-pid, sig); err != nil {
		if err := killProcess(pid, sig); err != nil {
			return fmt.Errorf("signal %s: %w", name, err)
		}
	}

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		if !processExists(pid) {
			// the signal landed and only the reaper's bookkeeping lags
			select {
			case <-done:
				return nil
			case <-time.After(time.Second):
			}
		}
		return ErrStopTimeout
	}
}

// Kill force-terminates the process group and marks the handle killed so
// Running turns false immediately.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	if s.cmd == nil {
		s.mu.Unlock()
		return ErrNotRunning
	}
	if s.exited {
		s.mu.Unlock()
		return nil
	}
	pid := s.cmd.Process.Pid
	s.killed = true
	done := s.waitDone
	s.mu.Unlock()

	_ = killProcess(-pid, killSignal)
	_ = killProcess(pid, killSignal)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		// best-effort; the reaper will finish the bookkeeping
	}
	return nil
}

// WriteConsole writes one line to the child's stdin.
func (s *Supervisor) WriteConsole(line string) error {
	s.mu.Lock()
	stdin := s.stdin
	running := s.cmd != nil && !s.exited && !s.killed
	s.mu.Unlock()
	if !running || stdin == nil {
		return ErrNotRunning
	}
	_, err := io.WriteString(stdin, line+"\n")
	return err
}

// ExitErr returns the last generation's exit error, if any.
func (s *Supervisor) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

func (s *Supervisor) closeWritersLocked() {
	closeWriter(s.outCloser)
	closeWriter(s.errCloser)
	s.outCloser = nil
	s.errCloser = nil
}

func closeWriter(w io.WriteCloser) {
	if w != nil {
		_ = w.Close()
	}
}
