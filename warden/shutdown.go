package warden

import "context"

// Shutdown is the process-wide cancellation broadcast. It transitions from
// not-raised to raised exactly once and never resets; every holder can poll
// it or select on Done. It is safe for concurrent use without locks.
type Shutdown struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewShutdown creates a Shutdown that is additionally raised when the given
// context is canceled, which is how the operator's interrupt signal
// (signal.NotifyContext in main) reaches every component.
func NewShutdown(ctx context.Context) *Shutdown {
	ctx, cancel := context.WithCancel(ctx)
	return &Shutdown{ctx: ctx, cancel: cancel}
}

// Raise raises the shutdown flag. It is idempotent; raising an already
// raised Shutdown does nothing.
func (s *Shutdown) Raise() { s.cancel() }

// Raised reports whether the flag has been raised. It never blocks.
func (s *Shutdown) Raised() bool {
	select {
	case <-s.ctx.Done():
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the flag is raised. The channel
// is shared by all callers, so it can be used as the cancellation arm of any
// select.
func (s *Shutdown) Done() <-chan struct{} { return s.ctx.Done() }

// Context returns a context that is canceled when the flag is raised.
func (s *Shutdown) Context() context.Context { return s.ctx }
