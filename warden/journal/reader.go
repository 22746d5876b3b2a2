package journal

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/diamondburned/backwardio"
	"github.com/pkg/errors"
	"github.com/warden-sh/warden/warden"
)

// errMalformedLine tags a line that was consumed but could not be decoded.
// Backward scans skip these lines; any other read error means the
// underlying reader itself failed.
var errMalformedLine = errors.New("malformed journal line")

// Reader reads journals written by Writer backwards, i.e. the most recent
// event first.
type Reader struct {
	b *backwardio.Scanner
}

// NewReader creates a new backward journal reader.
func NewReader(r io.ReadSeeker) *Reader {
	return &Reader{backwardio.NewScanner(r)}
}

// Read reads a single entry, starting from the bottom of the file. An EOF
// error is returned once the file has been fully consumed.
func (r *Reader) Read() (warden.Event, time.Time, error) {
	var line []byte
	var err error

	for {
		line, err = r.b.ReadUntil('\n')
		if err != nil {
			return nil, time.Time{}, err
		}
		if len(line) > 0 {
			break
		}
	}

	var rawEvent struct {
		Time time.Time       `json:"time"`
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(line, &rawEvent); err != nil {
		return nil, time.Time{}, errors.Wrap(errMalformedLine, "failed to decode JSON")
	}

	event := warden.NewEvent(rawEvent.Type)
	if event == nil {
		return nil, time.Time{}, errors.Wrapf(errMalformedLine, "unknown event %q", rawEvent.Type)
	}

	if err := json.Unmarshal(rawEvent.Data, event); err != nil {
		return nil, time.Time{}, errors.Wrap(errMalformedLine, "failed to decode event data")
	}

	return event, rawEvent.Time, nil
}

// ReadLastRunFromFile reads the LastRun anchors from the given journal file
// path. A missing file is a normal initial condition and yields an empty
// LastRun.
func ReadLastRunFromFile(path string) (*warden.LastRun, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &warden.LastRun{Backups: map[string]time.Time{}}, nil
		}
		return nil, err
	}
	defer f.Close()

	return ReadLastRun(f)
}

// ReadLastRun scans the journal backwards and collects, for each backup
// policy, the most recent backup-finished instant, plus the most recent
// update-check instant. Undecodable lines are skipped; a partially written
// tail must not make a previous run unrecoverable.
func ReadLastRun(r io.ReadSeeker) (*warden.LastRun, error) {
	last := &warden.LastRun{Backups: map[string]time.Time{}}

	reader := NewReader(r)

	for {
		ev, t, err := reader.Read()
		switch {
		case err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF):
			return last, nil
		case errors.Is(err, errMalformedLine):
			// The line was consumed; skip it.
			continue
		case err != nil:
			// The reader itself failed; keep whatever was recovered so
			// far rather than retrying the same error forever.
			return last, nil
		}

		switch ev := ev.(type) {
		case *warden.EventBackupFinished:
			key := warden.BackupKey(ev.Repo, ev.Src)
			if _, ok := last.Backups[key]; !ok {
				last.Backups[key] = t
			}

		case *warden.EventUpdateChecked:
			if last.Update == nil {
				update := t
				last.Update = &update
			}
		}
	}
}
