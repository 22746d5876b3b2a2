package warden

import (
	"context"
	"encoding/json"
	osexec "os/exec"
	"time"

	"github.com/pkg/errors"
)

// RunCommand builds the container runtime invocation that runs the
// application container in the foreground.
func RunCommand(runtime string, app *AppConfig) *osexec.Cmd {
	args := []string{"run", "--rm", "--network", string(app.NetworkMode)}

	for _, kv := range envList(app.Environments) {
		args = append(args, "-e", kv)
	}
	for _, vol := range app.Volumes {
		args = append(args, "-v", vol)
	}
	for _, port := range app.Ports {
		args = append(args, "-p", port)
	}
	for _, cap := range app.CapAdd {
		args = append(args, "--cap-add", cap)
	}

	args = append(args, app.Image)
	args = append(args, app.Args...)

	return osexec.Command(runtime, args...)
}

// PullCommand builds the container runtime invocation that pulls the
// application image.
func PullCommand(runtime string, app *AppConfig) *osexec.Cmd {
	return osexec.Command(runtime, "pull", app.Image)
}

type imageInfo struct {
	Created time.Time `json:"Created"`
}

// ImageCreatedTime queries the runtime for the creation timestamp of the
// given image. A zero time with a nil error means the record is missing or
// malformed; callers treat unknown as "assume changed", not as a hard error.
func ImageCreatedTime(ctx context.Context, runtime, image string) (time.Time, error) {
	cmd := osexec.CommandContext(ctx, runtime, "inspect", image)

	out, err := cmd.Output()
	if err != nil {
		// The image may simply not exist locally yet.
		return time.Time{}, nil
	}

	var infos []imageInfo
	if err := json.Unmarshal(out, &infos); err != nil {
		return time.Time{}, errors.Wrap(err, "failed to decode image info")
	}

	if len(infos) == 0 {
		return time.Time{}, nil
	}

	return infos[0].Created, nil
}
