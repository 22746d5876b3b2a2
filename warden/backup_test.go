package warden

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-sh/warden/warden/exec"
)

func backupConfig(strategy BackupStrategy) *Config {
	cfg := appConfig()
	cfg.Backups = []BackupConfig{{
		Repo: "/srv/restic", Src: "/data", Interval: Daily(), Strategy: strategy,
	}}
	return cfg
}

func TestRunBackup(t *testing.T) {
	ctx := context.Background()

	t.Run("stop_app stops the app before the backup and respawns after", func(t *testing.T) {
		r := newRig(t, backupConfig(StopApp))

		app, err := r.sup.startApp()
		require.NoError(t, err)
		oldPID := app.PID()

		newApp, err := r.sup.runBackup(ctx, &r.sup.cfg.Backups[0], app)
		require.NoError(t, err)

		// The old app must be fully terminated before the backup spawned.
		select {
		case <-app.Exited():
		default:
			t.Fatal("old app still running after backup")
		}

		assert.Equal(t, []string{"app", "backup", "app"}, r.labels())
		assert.NotEqual(t, oldPID, newApp.PID())

		newApp.TerminateAndWait(ctx)
	})

	t.Run("live leaves the app untouched", func(t *testing.T) {
		r := newRig(t, backupConfig(Live))

		app, err := r.sup.startApp()
		require.NoError(t, err)
		oldPID := app.PID()

		newApp, err := r.sup.runBackup(ctx, &r.sup.cfg.Backups[0], app)
		require.NoError(t, err)

		assert.Same(t, app, newApp)
		assert.Equal(t, oldPID, newApp.PID())
		assert.Equal(t, []string{"app", "backup"}, r.labels())

		select {
		case <-app.Exited():
			t.Fatal("live backup terminated the app")
		default:
		}

		newApp.TerminateAndWait(ctx)
	})

	t.Run("failure is reported and the app still respawns", func(t *testing.T) {
		r := newRig(t, backupConfig(StopApp))
		r.scriptFor("backup", func(pid int) (*exec.ScriptProcess, error) {
			script := exec.NewScriptProcess(0, 0, pid)
			script.ExitCode = 2
			return script, nil
		})

		app, err := r.sup.startApp()
		require.NoError(t, err)

		newApp, err := r.sup.runBackup(ctx, &r.sup.cfg.Backups[0], app)
		require.Error(t, err)
		require.NotNil(t, newApp)

		finished := r.j.OfType(eventBackupFinished)
		require.Len(t, finished, 1)
		assert.True(t, finished[0].(*EventBackupFinished).Failed)

		assert.Equal(t, []string{"app", "backup", "app"}, r.labels())

		newApp.TerminateAndWait(ctx)
	})

	t.Run("backup command snapshots the source", func(t *testing.T) {
		cmd := BackupCommand(&BackupConfig{
			Repo: "/srv/restic", Src: "/data", Interval: Daily(),
			Environments: map[string]string{"RESTIC_PASSWORD": "hunter2"},
		})

		assert.Equal(t, []string{
			"restic", "-r", "/srv/restic", "--verbose", "backup", "/data",
		}, cmd.Args)
		assert.Contains(t, cmd.Env, "RESTIC_PASSWORD=hunter2")

		// Credentials travel in the environment, never on the command line.
		for _, arg := range cmd.Args {
			assert.NotContains(t, arg, "hunter2")
		}
	})

	t.Run("backup timing is recorded for the next interval", func(t *testing.T) {
		r := newRig(t, backupConfig(Live))

		app, err := r.sup.startApp()
		require.NoError(t, err)

		_, err = r.sup.runBackup(ctx, &r.sup.cfg.Backups[0], app)
		require.NoError(t, err)

		// The loop re-anchors from the journal event's presence; here we
		// just assert the event exists with the policy's identity.
		finished := r.j.OfType(eventBackupFinished)
		require.Len(t, finished, 1)
		ev := finished[0].(*EventBackupFinished)
		assert.Equal(t, "/srv/restic", ev.Repo)
		assert.Equal(t, "/data", ev.Src)

		app.TerminateAndWait(ctx)
	})
}

func TestBackupKey(t *testing.T) {
	assert.Equal(t, BackupKey("r", "s"), BackupKey("r", "s"))
	assert.NotEqual(t, BackupKey("r", "s"), BackupKey("r", "x"))
}

func TestLatestSnapshotTimeDecode(t *testing.T) {
	// Guard the wire shape restic emits for snapshots --json.
	var snaps []snapshot
	err := json.Unmarshal([]byte(`[{"time":"2024-03-09T04:00:00Z","paths":["/data"]}]`), &snaps)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, time.Date(2024, time.March, 9, 4, 0, 0, 0, time.UTC), snaps[0].Time)
}
