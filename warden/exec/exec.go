// Package exec provides an abstraction around package os/exec's process
// handling for easier testing. Unlike a bare exec.Cmd, a Process always
// captures its stdout and stderr as independent streams.
package exec

import (
	"io"
	"os"
	osexec "os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Process describes a started command process.
type Process interface {
	PID() int
	Signal(os.Signal) error
	Kill() error
	// Wait blocks until the process exits and returns its status. It must be
	// called exactly once, and only after both streams have been drained.
	Wait() ExitStatus
	// Stdout and Stderr are the process's captured output streams. They
	// reach EOF when the process closes them or exits.
	Stdout() io.Reader
	Stderr() io.Reader
}

// ExitStatus is a process's exit status.
type ExitStatus struct {
	PID   int
	Code  int // -1 if terminated by a signal
	Error error
}

// Success returns true if the process exited with code zero.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Error == nil
}

type process struct {
	cmd    *osexec.Cmd
	stdout io.Reader
	stderr io.Reader
}

var _ Process = (*process)(nil)

// StartCommand starts the given command with both output streams captured.
// The command's Stdout and Stderr must not be set by the caller.
func StartCommand(cmd *osexec.Cmd) (Process, error) {
	// Linux-only: become a subreaper so children of the container runtime
	// cannot disown themselves from us. Best-effort; the spawn still works
	// without it.
	unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0)

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	// Linux-only: the child dies when we do. The next best thing to proper
	// reparenting of orphaned children.
	cmd.SysProcAttr.Pdeathsig = syscall.SIGTERM

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to capture stdout")
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to capture stderr")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start process")
	}

	return &process{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func (proc *process) PID() int { return proc.cmd.Process.Pid }

func (proc *process) Signal(sig os.Signal) error {
	return proc.cmd.Process.Signal(sig)
}

func (proc *process) Kill() error {
	return proc.cmd.Process.Kill()
}

func (proc *process) Wait() ExitStatus {
	err := proc.cmd.Wait()

	status := ExitStatus{
		PID:  proc.cmd.Process.Pid,
		Code: proc.cmd.ProcessState.ExitCode(),
	}

	// A non-zero exit is reported through the code, not as an error.
	var exitErr *osexec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		status.Error = err
	}

	return status
}

func (proc *process) Stdout() io.Reader { return proc.stdout }
func (proc *process) Stderr() io.Reader { return proc.stderr }
