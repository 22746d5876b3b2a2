package warden

import (
	"context"

	"github.com/pkg/errors"
)

// runBackup executes one backup policy. With the StopApp strategy the
// application is retired first (its exit status is deliberately ignored) and
// respawned afterwards, whether or not the backup itself succeeded; without
// a running application there is nothing left to supervise. The returned
// process is the new current application. The returned error is the backup
// failure, left for the caller to apply the policy's on_failure choice.
func (s *Supervisor) runBackup(ctx context.Context, b *BackupConfig, app *Process) (*Process, error) {
	stopping := b.Strategy == StopApp

	if stopping {
		// Wait on the exit slot itself: the source must be quiescent even
		// if the run context is canceled mid-stop.
		s.j.Write(&EventSupervisor{Message: "stopping app before backup"})
		app.TerminateAndWait(context.Background())
	}

	backupErr := s.backupOne(b)

	s.j.Write(&EventBackupFinished{
		Repo:   b.Repo,
		Src:    b.Src,
		Failed: backupErr != nil,
	})

	if backupErr != nil {
		backupsTotal.WithLabelValues("failed").Inc()
	} else {
		backupsTotal.WithLabelValues("ok").Inc()
	}

	if stopping {
		s.j.Write(&EventSupervisor{Message: "starting app after backup"})

		newApp, err := s.startApp()
		if err != nil {
			// No application left to supervise; this trumps the backup
			// policy.
			return nil, err
		}

		appRestartsTotal.WithLabelValues("backup").Inc()
		app = newApp
	}

	return app, backupErr
}

func (s *Supervisor) backupOne(b *BackupConfig) error {
	proc, err := s.start("backup", BackupCommand(b))
	if err != nil {
		return err
	}

	status, err := proc.Wait(context.Background())
	if err != nil {
		return errors.Wrapf(err, "failed to wait for backup of %s", b.Src)
	}

	if !status.Success() {
		return errors.Errorf("backup of %s exited with code %d", b.Src, status.Code)
	}

	return nil
}
