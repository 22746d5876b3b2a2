package warden

import (
	"context"

	"github.com/pkg/errors"
)

// runUpdate pulls the latest application image and restarts the application
// only when the image's creation timestamp actually changed. An unknown
// creation time before the pull is treated as "assume changed" once the
// pulled image reports a known one.
func (s *Supervisor) runUpdate(ctx context.Context, app *Process) (*Process, error) {
	image := s.cfg.App.Image

	oldTime, err := s.imageCreated(ctx, s.cfg.Runtime, image)
	if err != nil {
		s.j.Write(&EventWarning{
			Component: "update",
			Error:     "image creation time unknown: " + err.Error(),
		})
	}

	s.j.Write(&EventSupervisor{Message: "pulling latest image for " + image})

	proc, err := s.start("update", PullCommand(s.cfg.Runtime, &s.cfg.App))
	if err != nil {
		return app, err
	}

	status, err := proc.Wait(context.Background())
	if err != nil {
		return app, errors.Wrap(err, "failed to wait for image pull")
	}
	if !status.Success() {
		return app, errors.Errorf("image pull exited with code %d", status.Code)
	}

	newTime, err := s.imageCreated(ctx, s.cfg.Runtime, image)
	if err != nil {
		s.j.Write(&EventWarning{
			Component: "update",
			Error:     "image creation time unknown: " + err.Error(),
		})
	}

	updated := !newTime.IsZero() && !newTime.Equal(oldTime)

	s.j.Write(&EventUpdateChecked{
		Image:   image,
		Updated: updated,
	})

	if !updated {
		updatesTotal.WithLabelValues("unchanged").Inc()
		s.j.Write(&EventSupervisor{Message: "image not updated, leaving app untouched"})
		return app, nil
	}

	s.j.Write(&EventSupervisor{Message: "image updated, restarting app"})

	if _, err := app.TerminateAndWait(context.Background()); err != nil {
		return app, errors.Wrap(err, "failed to terminate app for update")
	}

	newApp, err := s.startApp()
	if err != nil {
		return nil, err
	}

	updatesTotal.WithLabelValues("updated").Inc()
	appRestartsTotal.WithLabelValues("update").Inc()

	return newApp, nil
}
