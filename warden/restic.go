package warden

import (
	"context"
	"encoding/json"
	"os"
	osexec "os/exec"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// resticCommand builds the base restic invocation for a repository. The
// repository credentials travel in the process environment, never on the
// command line.
func resticCommand(repo string, env map[string]string, args ...string) *osexec.Cmd {
	cmd := osexec.Command("restic", append([]string{"-r", repo}, args...)...)
	cmd.Env = append(os.Environ(), envList(env)...)
	return cmd
}

// envList flattens an environment map into KEY=VALUE pairs, sorted so the
// result is deterministic.
func envList(env map[string]string) []string {
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// BackupCommand builds the restic invocation that snapshots the policy's
// source path.
func BackupCommand(b *BackupConfig) *osexec.Cmd {
	return resticCommand(b.Repo, b.Environments, "--verbose", "backup", b.Src)
}

// RestoreCommand builds the restic invocation that restores the latest
// snapshot into the policy's destination path.
func RestoreCommand(r *RestoreConfig) *osexec.Cmd {
	return resticCommand(r.Repo, r.Environments,
		"--verbose", "restore", "latest", "--target", r.Dst)
}

type snapshot struct {
	Time time.Time `json:"time"`
}

// LatestSnapshotTime queries the repository for the time of the most recent
// snapshot scoped to the policy's source path. A nil time with a nil error
// means no snapshot exists yet, which is a normal initial condition.
func LatestSnapshotTime(ctx context.Context, b *BackupConfig) (*time.Time, error) {
	cmd := osexec.CommandContext(ctx, "restic",
		"-r", b.Repo, "snapshots", "--json", "--latest", "1", "--path", b.Src)
	cmd.Env = append(os.Environ(), envList(b.Environments)...)

	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list snapshots")
	}

	var snapshots []snapshot
	if err := json.Unmarshal(out, &snapshots); err != nil {
		return nil, errors.Wrap(err, "failed to decode snapshot list")
	}

	if len(snapshots) == 0 {
		return nil, nil
	}

	return &snapshots[0].Time, nil
}
