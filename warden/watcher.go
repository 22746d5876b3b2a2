package warden

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Watcher watches the configuration file for modifications. The running
// supervisor keeps its loaded configuration; the watcher only journals that
// a restart is needed to apply the change.
type Watcher struct {
	w    *fsnotify.Watcher
	j    Journaler
	path string
}

// TryWatch attempts to watch the given config file asynchronously, but it
// will log into the journaler if, for some reason, it fails to watch.
func TryWatch(ctx context.Context, path string, j Journaler) *Watcher {
	w := &Watcher{j: j, path: filepath.Clean(path)}

	go func() {
		if err := w.init(); err != nil {
			j.Write(&EventWarning{
				Component: "watcher",
				Error:     "not watching config because: " + err.Error(),
			})
			return
		}

		w.watch(ctx)
	}()

	return w
}

func (w *Watcher) init() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}

	// Watch the directory, not the file: editors commonly replace the file,
	// which would drop a direct watch.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return errors.Wrap(err, "failed to watch config dir")
	}

	w.w = watcher
	return nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-w.w.Errors:
			w.j.Write(&EventWarning{
				Component: "watcher",
				Error:     "inotify error: " + err.Error(),
			})

		case evt := <-w.w.Events:
			if filepath.Clean(evt.Name) != w.path {
				continue
			}

			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.j.Write(&EventConfigChanged{Path: w.path})
			}
		}
	}
}
