// Package journal provides implementations of warden's Journaler interface:
// a flock-guarded journal file so that only one warden instance can manage
// an application at a time, a human-readable writer for the terminal, and a
// backward reader used to recover schedule anchors from a previous run.
package journal

import (
	"github.com/warden-sh/warden/warden"
)

// multiWriter combines multiple journalers.
type multiWriter struct {
	writers []warden.Journaler
}

// MultiWriter creates a journaler that writes every event to all of the
// given journalers. The first write error is returned, but later writers
// still receive the event.
func MultiWriter(ws ...warden.Journaler) warden.Journaler {
	return &multiWriter{ws}
}

func (w *multiWriter) Write(event warden.Event) error {
	var firstErr error
	for _, writer := range w.writers {
		if err := writer.Write(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
