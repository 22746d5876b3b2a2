package warden

import (
	"bufio"
	"context"
	"io"
	osexec "os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/warden-sh/warden/warden/exec"
)

// TermGrace is the time a child process is given to exit after SIGTERM
// before it is SIGKILLed.
var TermGrace = 5 * time.Second

// termState tracks the termination escalation of a process. Transitions are
// running -> signaled -> (exited | timedOut -> killed -> exited), or
// running -> exited for a natural exit.
type termState int32

const (
	stateRunning termState = iota
	stateSignaled
	stateTimedOut
	stateKilled
	stateExited
)

// Process supervises one spawned child process end-to-end: it pumps the
// child's output streams into the journal, records the exit status exactly
// once, and escalates termination when the shared Shutdown is raised or when
// the process is retired individually with Terminate.
type Process struct {
	// GracePeriod overrides TermGrace for this process if set before any
	// waiter can observe an exit. Defaults to TermGrace.
	GracePeriod time.Duration

	label string
	pid   int
	j     Journaler
	proc  exec.Process

	term     chan struct{}
	termOnce sync.Once

	exited chan struct{} // closed exactly once, after status is set
	status exec.ExitStatus

	state int32 // termState
}

// StartProcess spawns the given command under supervision. Spawn and stream
// capture failures are returned immediately; they are never deferred to
// Wait.
func StartProcess(label string, cmd *osexec.Cmd, sd *Shutdown, j Journaler) (*Process, error) {
	return startProcess(label, func() (exec.Process, error) {
		return exec.StartCommand(cmd)
	}, sd, j)
}

func startProcess(label string, start func() (exec.Process, error), sd *Shutdown, j Journaler) (*Process, error) {
	proc, err := start()
	if err != nil {
		j.Write(&EventProcessSpawnError{
			Label:  label,
			Reason: err.Error(),
		})
		return nil, errors.Wrapf(err, "failed to spawn %s", label)
	}

	p := &Process{
		GracePeriod: TermGrace,

		label: label,
		pid:   proc.PID(),
		j:     j,
		proc:  proc,

		term:   make(chan struct{}),
		exited: make(chan struct{}),
	}

	j.Write(&EventProcessSpawned{
		Label: label,
		PID:   p.pid,
	})

	var pumps sync.WaitGroup
	pumps.Add(2)
	go p.pump(proc.Stdout(), "stdout", &pumps)
	go p.pump(proc.Stderr(), "stderr", &pumps)

	// The exit status must only be collected after both streams hit EOF,
	// otherwise the tail of the output is lost.
	exitCh := make(chan exec.ExitStatus, 1)
	go func() {
		pumps.Wait()
		exitCh <- proc.Wait()
	}()

	go p.monitor(exitCh, sd)

	return p, nil
}

// Label returns the label the process was spawned with.
func (p *Process) Label() string { return p.label }

// PID returns the process ID of the supervised child.
func (p *Process) PID() int { return p.pid }

// Wait suspends the caller until the exit slot is populated. It may be
// called concurrently by any number of observers; all of them see the same
// terminal status. The error is non-nil only if the child's exit could not
// be observed or the context was canceled, never for a non-zero exit code.
func (p *Process) Wait(ctx context.Context) (exec.ExitStatus, error) {
	select {
	case <-p.exited:
		return p.status, p.status.Error
	case <-ctx.Done():
		return exec.ExitStatus{}, ctx.Err()
	}
}

// Exited returns a channel that is closed once the exit slot is populated.
// It is the non-blocking arm for racing the process's exit against timers.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Terminate starts this process's own termination escalation, independently
// of the global Shutdown. It is idempotent and returns immediately.
func (p *Process) Terminate() {
	p.termOnce.Do(func() { close(p.term) })
}

// TerminateAndWait retires the process: it starts the termination escalation
// and then behaves like Wait. Used to stop the application before restarting
// it with a new image, without touching the rest of the system's shutdown
// state.
func (p *Process) TerminateAndWait(ctx context.Context) (exec.ExitStatus, error) {
	p.Terminate()
	return p.Wait(ctx)
}

func (p *Process) pump(r io.Reader, stream string, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		p.j.Write(&EventProcessOutput{
			Label:  p.label,
			PID:    p.pid,
			Stream: stream,
			Line:   scanner.Text(),
		})
	}

	if err := scanner.Err(); err != nil {
		p.j.Write(&EventWarning{
			Component: p.label,
			Error:     stream + " pump: " + err.Error(),
		})
	}
}

// monitor races the natural exit against the shutdown broadcast and the
// per-process terminate channel, escalating SIGTERM -> grace -> SIGKILL on
// the losing side. It is the single writer of the exit slot.
func (p *Process) monitor(exitCh <-chan exec.ExitStatus, sd *Shutdown) {
	select {
	case status := <-exitCh:
		p.finish(status)
		return

	case <-sd.Done():
	case <-p.term:
	}

	p.setState(stateSignaled)

	if err := p.proc.Signal(syscall.SIGTERM); err != nil {
		// Best-effort: log and fall through to the kill path.
		p.j.Write(&EventWarning{
			Component: p.label,
			Error:     "failed to SIGTERM: " + err.Error(),
		})
	}

	grace := time.NewTimer(p.GracePeriod)
	defer grace.Stop()

	select {
	case status := <-exitCh:
		p.finish(status)

	case <-grace.C:
		p.setState(stateTimedOut)

		if err := p.proc.Kill(); err != nil {
			p.j.Write(&EventWarning{
				Component: p.label,
				Error:     "failed to SIGKILL: " + err.Error(),
			})
		}

		p.setState(stateKilled)
		p.finish(<-exitCh)
	}
}

func (p *Process) finish(status exec.ExitStatus) {
	ev := EventProcessExited{
		Label:    p.label,
		PID:      p.pid,
		ExitCode: status.Code,
	}

	if status.Error != nil {
		ev.Error = status.Error.Error()
	}

	// Write to the journal before resolving the exit slot to ensure that the
	// journal entry gets written.
	p.j.Write(&ev)

	p.status = status
	p.setState(stateExited)
	close(p.exited)
}

func (p *Process) setState(s termState) {
	atomic.StoreInt32(&p.state, int32(s))
}

func (p *Process) termState() termState {
	return termState(atomic.LoadInt32(&p.state))
}
