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

// creationTimes makes an imageCreated seam that returns the given times in
// order, repeating the last one.
func creationTimes(times ...time.Time) func(context.Context, string, string) (time.Time, error) {
	i := 0
	return func(context.Context, string, string) (time.Time, error) {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t, nil
	}
}

func TestRunUpdate(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	t.Run("unchanged image is a no-op", func(t *testing.T) {
		r := newRig(t, appConfig())
		r.sup.imageCreated = creationTimes(created, created)

		app, err := r.sup.startApp()
		require.NoError(t, err)
		oldPID := app.PID()

		newApp, err := r.sup.runUpdate(ctx, app)
		require.NoError(t, err)

		assert.Same(t, app, newApp)
		assert.Equal(t, oldPID, newApp.PID())
		assert.Equal(t, []string{"app", "update"}, r.labels())

		checked := r.j.OfType(eventUpdateChecked)
		require.Len(t, checked, 1)
		assert.False(t, checked[0].(*EventUpdateChecked).Updated)

		newApp.TerminateAndWait(ctx)
	})

	t.Run("changed image restarts the app", func(t *testing.T) {
		r := newRig(t, appConfig())
		r.sup.imageCreated = creationTimes(created, created.Add(time.Hour))

		app, err := r.sup.startApp()
		require.NoError(t, err)
		oldPID := app.PID()

		newApp, err := r.sup.runUpdate(ctx, app)
		require.NoError(t, err)

		assert.NotEqual(t, oldPID, newApp.PID())
		assert.Equal(t, []string{"app", "update", "app"}, r.labels())

		select {
		case <-app.Exited():
		default:
			t.Fatal("old app still running after image update")
		}

		newApp.TerminateAndWait(ctx)
	})

	t.Run("unknown before known counts as changed", func(t *testing.T) {
		r := newRig(t, appConfig())
		r.sup.imageCreated = creationTimes(time.Time{}, created)

		app, err := r.sup.startApp()
		require.NoError(t, err)

		newApp, err := r.sup.runUpdate(ctx, app)
		require.NoError(t, err)
		assert.NotSame(t, app, newApp)

		newApp.TerminateAndWait(ctx)
	})

	t.Run("still unknown after pull leaves the app running", func(t *testing.T) {
		r := newRig(t, appConfig())
		r.sup.imageCreated = creationTimes(time.Time{}, time.Time{})

		app, err := r.sup.startApp()
		require.NoError(t, err)

		newApp, err := r.sup.runUpdate(ctx, app)
		require.NoError(t, err)
		assert.Same(t, app, newApp)

		newApp.TerminateAndWait(ctx)
	})

	t.Run("failed pull is fatal and keeps the app", func(t *testing.T) {
		r := newRig(t, appConfig())
		r.sup.imageCreated = creationTimes(created)
		r.scriptFor("update", func(pid int) (*exec.ScriptProcess, error) {
			script := exec.NewScriptProcess(0, 0, pid)
			script.ExitCode = 1
			return script, nil
		})

		app, err := r.sup.startApp()
		require.NoError(t, err)

		newApp, err := r.sup.runUpdate(ctx, app)
		require.Error(t, err)
		assert.Same(t, app, newApp)

		select {
		case <-app.Exited():
			t.Fatal("failed pull terminated the app")
		default:
		}

		newApp.TerminateAndWait(ctx)
	})
}

func TestRunCommand(t *testing.T) {
	cmd := RunCommand("docker", &AppConfig{
		Image:        "ghcr.io/x/app:latest",
		Args:         []string{"serve", "--port", "80"},
		Volumes:      []string{"/data:/data"},
		Ports:        []string{"8080:80"},
		NetworkMode:  NetworkBridge,
		Environments: map[string]string{"MODE": "production"},
		CapAdd:       []string{"NET_ADMIN"},
	})

	assert.Equal(t, []string{
		"docker", "run", "--rm", "--network", "bridge",
		"-e", "MODE=production",
		"-v", "/data:/data",
		"-p", "8080:80",
		"--cap-add", "NET_ADMIN",
		"ghcr.io/x/app:latest",
		"serve", "--port", "80",
	}, cmd.Args)
}

func TestPullCommand(t *testing.T) {
	cmd := PullCommand("podman", &AppConfig{Image: "ghcr.io/x/app:latest"})
	assert.Equal(t, []string{"podman", "pull", "ghcr.io/x/app:latest"}, cmd.Args)
}

func TestImageInfoDecode(t *testing.T) {
	// Guard the wire shape docker/podman emit for inspect.
	var infos []imageInfo
	err := json.Unmarshal([]byte(`[{"Id":"sha256:abc","Created":"2024-03-01T00:00:00.123456789Z"}]`), &infos)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 2024, infos[0].Created.Year())
}
