package journal

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/warden-sh/warden/warden"
)

// HumanWriter renders events as human-readable log lines through slog. It
// is the terminal-facing half of the journal; the JSON plane stays machine
// readable.
type HumanWriter struct {
	log *slog.Logger
}

var _ warden.Journaler = (*HumanWriter)(nil)

// NewHumanWriter creates a journaler that writes text log lines into w.
func NewHumanWriter(w io.Writer) *HumanWriter {
	return &HumanWriter{
		log: slog.New(slog.NewTextHandler(w, nil)),
	}
}

func (h *HumanWriter) Write(ev warden.Event) error {
	switch ev := ev.(type) {
	case *warden.EventProcessOutput:
		proc := fmt.Sprintf("%s(%d)", ev.Label, ev.PID)
		if ev.Stream == "stderr" {
			h.log.Warn(ev.Line, "proc", proc)
		} else {
			h.log.Info(ev.Line, "proc", proc)
		}

	case *warden.EventSupervisor:
		h.log.Info(ev.Message, "proc", "supervisor")

	case *warden.EventWarning:
		h.log.Warn(ev.Error, "component", ev.Component)

	case *warden.EventAcquired:
		h.log.Info("journal lock acquired", "proc", "supervisor")

	case *warden.EventProcessSpawned:
		h.log.Info("process spawned", "label", ev.Label, "pid", ev.PID)

	case *warden.EventProcessSpawnError:
		h.log.Error("process spawn failed", "label", ev.Label, "reason", ev.Reason)

	case *warden.EventProcessExited:
		switch {
		case !ev.IsGraceful():
			h.log.Warn("process terminated by signal",
				"label", ev.Label, "pid", ev.PID, "error", ev.Error)
		case ev.ExitCode == 0 && ev.Error == "":
			h.log.Info("process exited", "label", ev.Label, "pid", ev.PID, "exit_code", ev.ExitCode)
		default:
			h.log.Warn("process exited",
				"label", ev.Label, "pid", ev.PID, "exit_code", ev.ExitCode, "error", ev.Error)
		}

	case *warden.EventRestoreSkipped:
		h.log.Info("destination exists, skipping restore", "repo", ev.Repo, "dst", ev.Dst)

	case *warden.EventBackupFinished:
		if ev.Failed {
			h.log.Warn("backup failed", "repo", ev.Repo, "src", ev.Src)
		} else {
			h.log.Info("backup finished", "repo", ev.Repo, "src", ev.Src)
		}

	case *warden.EventUpdateChecked:
		h.log.Info("update check finished", "image", ev.Image, "updated", ev.Updated)

	case *warden.EventConfigChanged:
		h.log.Warn("config changed; restart warden to apply", "path", ev.Path)

	default:
		h.log.Info(ev.Type())
	}

	return nil
}
