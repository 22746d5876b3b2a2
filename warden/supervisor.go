package warden

import (
	"context"
	"fmt"
	osexec "os/exec"
	"time"

	"github.com/pkg/errors"
)

// LastRun carries schedule anchors recovered from a previous supervisor
// run, used so that a restart does not reset the backup and update cadence.
type LastRun struct {
	// Backups maps BackupKey(repo, src) to the instant the policy's last
	// backup finished.
	Backups map[string]time.Time
	// Update is the instant of the last update check, if any.
	Update *time.Time
}

// BackupKey identifies a backup policy across runs.
func BackupKey(repo, src string) string { return repo + " " + src }

// Supervisor is the top-level control loop. It owns the single current
// application Process; workflows receive temporary custody to retire it and
// hand back a replacement.
type Supervisor struct {
	cfg *Config
	sd  *Shutdown
	j   Journaler
	loc *time.Location

	lastBackups []*time.Time
	lastUpdate  *time.Time

	// Seams for tests, following the injectable start function of Process.
	start        func(label string, cmd *osexec.Cmd) (*Process, error)
	snapshotTime func(ctx context.Context, b *BackupConfig) (*time.Time, error)
	imageCreated func(ctx context.Context, runtime, image string) (time.Time, error)
	pathExists   func(path string) bool
}

// NewSupervisor creates a supervisor for the given validated config. Seed
// may be nil when no previous run is known.
func NewSupervisor(cfg *Config, sd *Shutdown, j Journaler, seed *LastRun) (*Supervisor, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve timezone")
	}

	s := &Supervisor{
		cfg: cfg,
		sd:  sd,
		j:   j,
		loc: loc,

		lastBackups: make([]*time.Time, len(cfg.Backups)),

		snapshotTime: LatestSnapshotTime,
		imageCreated: ImageCreatedTime,
		pathExists:   defaultPathExists,
	}

	s.start = func(label string, cmd *osexec.Cmd) (*Process, error) {
		return StartProcess(label, cmd, sd, j)
	}

	if seed != nil {
		for i := range cfg.Backups {
			b := &cfg.Backups[i]
			if t, ok := seed.Backups[BackupKey(b.Repo, b.Src)]; ok {
				local := t.In(loc)
				s.lastBackups[i] = &local
			}
		}
		if seed.Update != nil {
			local := seed.Update.In(loc)
			s.lastUpdate = &local
		}
	}

	return s, nil
}

// Run drives the supervisor until the application exits on its own, a fatal
// error occurs, or shutdown is raised. The returned code is the program's
// exit status: the application's own exit code when it exited naturally, a
// generic failure code otherwise.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	if err := s.runRestores(ctx); err != nil {
		return 1, errors.Wrap(err, "failed to restore")
	}

	if s.sd.Raised() {
		return 1, errors.New("shutting down while restoring backup")
	}

	s.seedFromRepository(ctx)

	app, err := s.startApp()
	if err != nil {
		return 1, err
	}

	updateInterval := s.cfg.UpdateInterval()

	for !s.sd.Raised() {
		now := time.Now().In(s.loc)

		var backupC, updateC <-chan time.Time
		var backupTimer, updateTimer *time.Timer

		backupIdx, backupWait, backupOK := s.nextBackup(now)
		if backupOK {
			s.j.Write(&EventSupervisor{
				Message: fmt.Sprintf("next backup in %v", backupWait),
			})
			backupTimer = time.NewTimer(backupWait)
			backupC = backupTimer.C
		}

		if wait, ok := updateInterval.Next(s.lastUpdate, now); ok {
			s.j.Write(&EventSupervisor{
				Message: fmt.Sprintf("next update check in %v", wait),
			})
			updateTimer = time.NewTimer(wait)
			updateC = updateTimer.C
		}

		var fatal error

		select {
		case <-backupC:
			b := &s.cfg.Backups[backupIdx]

			app, err = s.runBackup(ctx, b, app)
			anchor := time.Now().In(s.loc)
			s.lastBackups[backupIdx] = &anchor

			if err != nil && app != nil && b.OnFailure == Retry {
				s.j.Write(&EventWarning{
					Component: "backup",
					Error:     err.Error() + "; retrying at next interval",
				})
			} else if err != nil {
				fatal = errors.Wrap(err, "failed to run backup")
			}

		case <-updateC:
			app, err = s.runUpdate(ctx, app)
			anchor := time.Now().In(s.loc)
			s.lastUpdate = &anchor

			if err != nil {
				fatal = errors.Wrap(err, "failed to run update")
			}

		case <-app.Exited():
			stopTimer(backupTimer)
			stopTimer(updateTimer)

			status, err := app.Wait(context.Background())
			if err != nil {
				return 1, errors.Wrap(err, "failed to observe app exit")
			}

			appUp.Set(0)
			s.j.Write(&EventSupervisor{
				Message: fmt.Sprintf("app exited with code %d", status.Code),
			})
			return status.Code, nil

		case <-s.sd.Done():
		}

		stopTimer(backupTimer)
		stopTimer(updateTimer)

		if fatal != nil {
			s.sd.Raise()
			if app != nil {
				app.Wait(context.Background())
			}
			return 1, fatal
		}
	}

	// Shutdown was raised. The app's monitor is already escalating off the
	// same broadcast; wait for it to settle so no child outlives us.
	if app != nil {
		app.Wait(context.Background())
	}

	appUp.Set(0)
	return 1, errors.New("shutting down")
}

// nextBackup picks the earliest-due backup policy at now. ok is false when
// no policy is configured or every schedule is exhausted.
func (s *Supervisor) nextBackup(now time.Time) (idx int, wait time.Duration, ok bool) {
	idx = -1

	for i := range s.cfg.Backups {
		d, due := s.cfg.Backups[i].Interval.Next(s.lastBackups[i], now)
		if !due {
			continue
		}
		if idx == -1 || d < wait {
			idx, wait = i, d
		}
	}

	return idx, wait, idx != -1
}

// seedFromRepository anchors each backup policy at its repository's latest
// snapshot time, unless a newer anchor was already recovered from the
// journal. Listing failures are recoverable; the policy simply starts from
// scratch.
func (s *Supervisor) seedFromRepository(ctx context.Context) {
	for i := range s.cfg.Backups {
		b := &s.cfg.Backups[i]

		t, err := s.snapshotTime(ctx, b)
		if err != nil {
			s.j.Write(&EventWarning{
				Component: "backup",
				Error:     "failed to query latest snapshot: " + err.Error(),
			})
			continue
		}
		if t == nil {
			continue
		}

		local := t.In(s.loc)
		if s.lastBackups[i] == nil || s.lastBackups[i].Before(local) {
			s.lastBackups[i] = &local
		}
	}
}

func (s *Supervisor) startApp() (*Process, error) {
	proc, err := s.start("app", RunCommand(s.cfg.Runtime, &s.cfg.App))
	if err != nil {
		return nil, err
	}

	appUp.Set(1)
	return proc, nil
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
