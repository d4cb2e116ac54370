package taskhost

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	killpkg "github.com/jesseduffield/kill"

	"github.com/buildmesh/enginecore/internal/core"
)

// DefaultExitBound is the default: the task host process must exit
// within this long after sending TaskHostTaskComplete, unless node reuse is
// enabled.
const DefaultExitBound = 2 * time.Second

// exitPollInterval is how often Process.WaitForExit polls os.FindProcess
// / Signal(0) while waiting for the bounded exit.
const exitPollInterval = 20 * time.Millisecond

// Process wraps one spawned out-of-process task host.
type Process struct {
	Runtime      string // e.g. "net8.0", "net472" — one host per (runtime, architecture)
	Architecture string

	cmd    *exec.Cmd
	logger interface {
		Warn(msg string, args ...any)
	}
}

// Spawner starts the external process for a given (runtime, architecture)
// pair. Production wiring passes a closure that shells out to the actual
// task host executable; tests substitute a short-lived helper binary or a
// fake.
type Spawner func(ctx context.Context, runtime, architecture string) (*exec.Cmd, error)

// Spawn starts the task host process via spawner and returns once the
// process has been launched (not once it is ready to receive
// TaskHostConfiguration; that handshake is the caller's concern).
func Spawn(ctx context.Context, runtime, architecture string, spawner Spawner, logger interface {
	Warn(msg string, args ...any)
}) (*Process, error) {
	cmd, err := spawner(ctx, runtime, architecture)
	if err != nil {
		return nil, core.NewBuildError(core.ErrorKindTaskHostCrash, fmt.Sprintf("failed to spawn task host process: %v", err))
	}
	return &Process{Runtime: runtime, Architecture: architecture, cmd: cmd, logger: logger}, nil
}

// Pid returns the OS process id, or 0 if the process never started.
func (p *Process) Pid() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// WaitForExit polls for process exit for up to bound after completion was
// reported. It logs a warning and returns false
// if the bound elapses with the process still alive; callers may then
// force-terminate it.
func (p *Process) WaitForExit(bound time.Duration) bool {
	if p.cmd == nil || p.cmd.Process == nil {
		return true
	}
	deadline := time.Now().Add(bound)
	for time.Now().Before(deadline) {
		if !processAlive(p.cmd.Process.Pid) {
			return true
		}
		time.Sleep(exitPollInterval)
	}
	alive := processAlive(p.cmd.Process.Pid)
	if alive && p.logger != nil {
		p.logger.Warn("task host process did not exit within the bound", "pid", p.cmd.Process.Pid, "bound", bound.String())
	}
	return !alive
}

// Terminate force-kills the process and any children it spawned, used when
// WaitForExit times out or the host crashes mid-call.
func (p *Process) Terminate() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	return killpkg.Kill(p.cmd)
}

// processAlive reports whether pid still refers to a live OS process.
// os.FindProcess always succeeds on POSIX, so liveness is determined by
// sending the null signal.
func processAlive(pid int) bool {
	// An exited child that has not been reaped still answers the null
	// signal, so reap it first if it has already exited.
	var ws syscall.WaitStatus
	if wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil); err == nil && wpid == pid {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
