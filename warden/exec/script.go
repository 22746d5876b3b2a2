package exec

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// ScriptProcess is a fake process used for testing. It idles for a duration
// before exiting on its own with ExitCode, and it can be told to ignore
// SIGTERM for a delay to exercise the kill escalation path.
type ScriptProcess struct {
	// ExitCode is the code reported when the process exits on its own.
	ExitCode int32

	once  sync.Once
	stop  chan struct{}
	timer *time.Timer
	delay time.Duration

	stdout io.Reader
	stderr io.Reader

	pid  int
	exit int32
}

var _ Process = (*ScriptProcess)(nil)

// NewScriptProcess creates a process that idles for dura before exiting with
// code zero. If delay is larger than 0, the process sleeps for that delay
// after receiving SIGTERM before honoring it, unless it is SIGKILLed first.
func NewScriptProcess(dura, delay time.Duration, pid int) *ScriptProcess {
	return &ScriptProcess{
		stop:  make(chan struct{}),
		timer: time.NewTimer(dura),
		delay: delay,

		stdout: strings.NewReader(""),
		stderr: strings.NewReader(""),

		pid:  pid,
		exit: -2,
	}
}

// SetOutput sets the canned stdout and stderr contents.
func (mock *ScriptProcess) SetOutput(stdout, stderr string) {
	mock.stdout = strings.NewReader(stdout)
	mock.stderr = strings.NewReader(stderr)
}

func (mock *ScriptProcess) PID() int { return mock.pid }

func (mock *ScriptProcess) Signal(sig os.Signal) error {
	var status int32

	switch sig {
	case syscall.SIGINT, syscall.SIGTERM: // catchable
		status = 0
	case syscall.SIGKILL:
		status = -1
	default:
		return errors.New("unknown signal")
	}

	go func() {
		if mock.delay > 0 && sig != os.Kill {
			select {
			case <-time.After(mock.delay):

			case <-mock.stop:
				return
			}
		}

		// Ensure exit is still unset (-2), otherwise bail.
		if !atomic.CompareAndSwapInt32(&mock.exit, -2, status) {
			return
		}

		close(mock.stop)
		mock.timer.Stop()
	}()

	return nil
}

func (mock *ScriptProcess) Kill() error {
	return mock.Signal(os.Kill)
}

func (mock *ScriptProcess) Wait() ExitStatus {
	mock.once.Do(func() {
		select {
		case <-mock.stop:
		case <-mock.timer.C:
			atomic.StoreInt32(&mock.exit, mock.ExitCode)
		}
	})

	return ExitStatus{
		PID:  mock.pid,
		Code: int(atomic.LoadInt32(&mock.exit)),
	}
}

func (mock *ScriptProcess) Stdout() io.Reader { return mock.stdout }
func (mock *ScriptProcess) Stderr() io.Reader { return mock.stderr }
