package journal

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-sh/warden/warden"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Write(&warden.EventProcessSpawned{Label: "app", PID: 1}))
	require.NoError(t, w.Write(&warden.EventProcessExited{Label: "app", PID: 1, ExitCode: 0}))

	r := NewReader(bytes.NewReader(buf.Bytes()))

	// The reader yields the most recent event first.
	ev, _, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, &warden.EventProcessExited{Label: "app", PID: 1, ExitCode: 0}, ev)

	ev, _, err = r.Read()
	require.NoError(t, err)
	assert.Equal(t, &warden.EventProcessSpawned{Label: "app", PID: 1}, ev)

	_, _, err = r.Read()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadLastRun(t *testing.T) {
	lines := []string{
		`{"time":"2024-03-01T00:00:00Z","type":"backup finished","data":{"repo":"r","src":"s"}}`,
		`{"time":"2024-03-02T00:00:00Z","type":"backup finished","data":{"repo":"r","src":"s"}}`,
		`{"time":"2024-03-02T01:00:00Z","type":"update checked","data":{"image":"img","updated":false}}`,
		`this line is not JSON`,
		`{"time":"2024-03-03T00:00:00Z","type":"supervisor","data":{"message":"next backup in 24h"}}`,
	}

	last, err := ReadLastRun(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)

	// The newest backup-finished entry per policy wins.
	key := warden.BackupKey("r", "s")
	require.Contains(t, last.Backups, key)
	assert.Equal(t, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC), last.Backups[key])

	require.NotNil(t, last.Update)
	assert.Equal(t, time.Date(2024, time.March, 2, 1, 0, 0, 0, time.UTC), *last.Update)
}

// brokenJournalFile fails every operation, the way a dying disk would.
type brokenJournalFile struct{}

func (brokenJournalFile) Read([]byte) (int, error) {
	return 0, errors.New("input/output error")
}

func (brokenJournalFile) Seek(int64, int) (int64, error) {
	return 0, errors.New("input/output error")
}

func TestReadLastRunBrokenReader(t *testing.T) {
	// A reader that keeps failing must not spin the scan; the anchors
	// recovered so far are returned instead.
	last, err := ReadLastRun(brokenJournalFile{})
	require.NoError(t, err)

	assert.Empty(t, last.Backups)
	assert.Nil(t, last.Update)
}

func TestReadLastRunFromMissingFile(t *testing.T) {
	last, err := ReadLastRunFromFile(filepath.Join(t.TempDir(), "journal.json"))
	require.NoError(t, err)

	assert.Empty(t, last.Backups)
	assert.Nil(t, last.Update)
}

func TestFileLockJournaler(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.json")

	j, err := NewFileLockJournaler(path)
	require.NoError(t, err)

	require.NoError(t, j.Write(&warden.EventAcquired{}))
	require.NoError(t, j.Write(&warden.EventBackupFinished{Repo: "r", Src: "s"}))

	// A second instance must not be able to take the same journal.
	_, err = NewFileLockJournaler(path)
	assert.ErrorIs(t, err, ErrLockedElsewhere)

	require.NoError(t, j.Close())

	// After release the journal can be reopened and read back.
	last, err := ReadLastRunFromFile(path)
	require.NoError(t, err)
	assert.Contains(t, last.Backups, warden.BackupKey("r", "s"))

	j2, err := NewFileLockJournaler(path)
	require.NoError(t, err)
	require.NoError(t, j2.Close())
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer

	w := MultiWriter(NewWriter(&a), NewWriter(&b))
	require.NoError(t, w.Write(&warden.EventBackupFinished{Repo: "r", Src: "s"}))

	// Each writer stamps its own time, so compare the decoded events
	// rather than the raw lines.
	for _, buf := range []*bytes.Buffer{&a, &b} {
		ev, _, err := NewReader(bytes.NewReader(buf.Bytes())).Read()
		require.NoError(t, err)
		assert.Equal(t, &warden.EventBackupFinished{Repo: "r", Src: "s"}, ev)
	}
}

func TestHumanWriter(t *testing.T) {
	var buf bytes.Buffer
	h := NewHumanWriter(&buf)

	require.NoError(t, h.Write(&warden.EventProcessOutput{
		Label: "app", PID: 7, Stream: "stdout", Line: "listening on :80",
	}))
	require.NoError(t, h.Write(&warden.EventSupervisor{Message: "next backup in 24h"}))
	require.NoError(t, h.Write(&warden.EventProcessExited{Label: "app", PID: 7, ExitCode: -1}))

	out := buf.String()
	assert.Contains(t, out, "listening on :80")
	assert.Contains(t, out, "app(7)")
	assert.Contains(t, out, "next backup in 24h")
	assert.Contains(t, out, "terminated by signal")
}
