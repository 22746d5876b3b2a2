package warden

// eventType describes an event type.
type eventType = string

const (
	eventWarning           eventType = "warning"
	eventAcquired          eventType = "acquired lock"
	eventSupervisor        eventType = "supervisor"
	eventProcessSpawnError eventType = "process spawn error"
	eventProcessSpawned    eventType = "process spawned"
	eventProcessExited     eventType = "process exited"
	eventProcessOutput     eventType = "process output"
	eventRestoreSkipped    eventType = "restore skipped"
	eventBackupFinished    eventType = "backup finished"
	eventUpdateChecked     eventType = "update checked"
	eventConfigChanged     eventType = "config changed"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new event from the given event type. It is used
// primarily for decoding events from its type. Nil is returned if the event
// type is unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventAcquired:
		return &EventAcquired{}
	case eventSupervisor:
		return &EventSupervisor{}
	case eventProcessSpawnError:
		return &EventProcessSpawnError{}
	case eventProcessSpawned:
		return &EventProcessSpawned{}
	case eventProcessExited:
		return &EventProcessExited{}
	case eventProcessOutput:
		return &EventProcessOutput{}
	case eventRestoreSkipped:
		return &EventRestoreSkipped{}
	case eventBackupFinished:
		return &EventBackupFinished{}
	case eventUpdateChecked:
		return &EventUpdateChecked{}
	case eventConfigChanged:
		return &EventConfigChanged{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventAcquired is emitted when the flock (i.e. write lock on the journal)
// is acquired, which is on startup.
type EventAcquired struct{}

func (ev *EventAcquired) Type() string { return eventAcquired }
func (ev *EventAcquired) event()       {}

// EventSupervisor is an informational message from the supervisor itself,
// such as the next scheduled backup instant.
type EventSupervisor struct {
	Message string `json:"message"`
}

func (ev *EventSupervisor) Type() string { return eventSupervisor }
func (ev *EventSupervisor) event()       {}

// EventProcessSpawnError is emitted when a child process fails to start for
// any reason.
type EventProcessSpawnError struct {
	Label  string `json:"label"`
	Reason string `json:"reason"`
}

func (ev *EventProcessSpawnError) Type() string { return eventProcessSpawnError }
func (ev *EventProcessSpawnError) event()       {}

// EventProcessSpawned is emitted when a child process has been started for
// any reason.
type EventProcessSpawned struct {
	Label string `json:"label"`
	PID   int    `json:"pid"`
}

func (ev *EventProcessSpawned) Type() string { return eventProcessSpawned }
func (ev *EventProcessSpawned) event()       {}

// EventProcessExited is emitted when a child process has stopped for any
// reason.
type EventProcessExited struct {
	Label    string `json:"label"`
	PID      int    `json:"pid"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"` // -1 if terminated by signal
}

// IsGraceful returns true if the process stopped gracefully (i.e. was not
// terminated by a signal).
func (ev EventProcessExited) IsGraceful() bool {
	return ev.ExitCode != -1
}

func (ev *EventProcessExited) Type() string { return eventProcessExited }
func (ev *EventProcessExited) event()       {}

// EventProcessOutput is one line of a child process's stdout or stderr.
type EventProcessOutput struct {
	Label  string `json:"label"`
	PID    int    `json:"pid"`
	Stream string `json:"stream"` // "stdout" or "stderr"
	Line   string `json:"line"`
}

func (ev *EventProcessOutput) Type() string { return eventProcessOutput }
func (ev *EventProcessOutput) event()       {}

// EventRestoreSkipped is emitted when a restore policy is skipped because
// its destination already exists.
type EventRestoreSkipped struct {
	Repo string `json:"repo"`
	Dst  string `json:"dst"`
}

func (ev *EventRestoreSkipped) Type() string { return eventRestoreSkipped }
func (ev *EventRestoreSkipped) event()       {}

// EventBackupFinished is emitted when a backup run completes. Its journal
// timestamp re-anchors the backup schedule across supervisor restarts.
type EventBackupFinished struct {
	Repo   string `json:"repo"`
	Src    string `json:"src"`
	Failed bool   `json:"failed,omitempty"`
}

func (ev *EventBackupFinished) Type() string { return eventBackupFinished }
func (ev *EventBackupFinished) event()       {}

// EventUpdateChecked is emitted when an image update check completes,
// whether or not the image actually changed.
type EventUpdateChecked struct {
	Image   string `json:"image"`
	Updated bool   `json:"updated"`
}

func (ev *EventUpdateChecked) Type() string { return eventUpdateChecked }
func (ev *EventUpdateChecked) event()       {}

// EventConfigChanged is emitted when the configuration file is modified on
// disk. The running supervisor keeps its loaded configuration; the event
// tells the operator a restart is needed to apply the change.
type EventConfigChanged struct {
	Path string `json:"path"`
}

func (ev *EventConfigChanged) Type() string { return eventConfigChanged }
func (ev *EventConfigChanged) event()       {}
