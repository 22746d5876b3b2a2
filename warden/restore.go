package warden

import (
	"context"
	"os"

	"github.com/pkg/errors"
)

// runRestores evaluates every restore policy once, before the application
// first runs. Eligible restores run concurrently; their destinations are
// disjoint paths, so overlapping restic processes are safe. Any spawn error
// or non-zero exit fails the whole startup.
func (s *Supervisor) runRestores(ctx context.Context) error {
	eligible := make([]*RestoreConfig, 0, len(s.cfg.Restores))

	for i := range s.cfg.Restores {
		r := &s.cfg.Restores[i]

		if r.Strategy == IfMissing && s.pathExists(r.Dst) {
			s.j.Write(&EventRestoreSkipped{
				Repo: r.Repo,
				Dst:  r.Dst,
			})
			continue
		}

		eligible = append(eligible, r)
	}

	errCh := make(chan error, len(eligible))

	for _, r := range eligible {
		go func(r *RestoreConfig) {
			errCh <- s.restoreOne(r)
		}(r)
	}

	var firstErr error
	for range eligible {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (s *Supervisor) restoreOne(r *RestoreConfig) error {
	proc, err := s.start("restore", RestoreCommand(r))
	if err != nil {
		return err
	}

	// The monitor already escalates off the shutdown broadcast; an operator
	// interrupt must surface as the child's exit status, not a canceled
	// wait.
	status, err := proc.Wait(context.Background())
	if err != nil {
		return errors.Wrapf(err, "failed to wait for restore of %s", r.Dst)
	}

	if !status.Success() {
		return errors.Errorf("restore of %s exited with code %d", r.Dst, status.Code)
	}

	return nil
}

func defaultPathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
