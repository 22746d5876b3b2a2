// Package warden is the core of the warden supervisor. It owns the full
// lifecycle of one containerized application: restoring its persisted state
// before the first run, keeping the container running, snapshotting its data
// to a restic repository on a schedule, pulling image updates on a schedule,
// and tearing everything down cleanly on an operator interrupt.
//
// Mechanism of Operation
//
// Every external tool (the container runtime, restic) is run as a supervised
// child process. A Process owns exactly one child: it pumps the child's
// stdout and stderr into the journal line by line, watches for the exit
// status on a dedicated goroutine, and escalates termination (SIGTERM, a
// grace period, then SIGKILL) when the shared Shutdown coordinator is raised
// or when the process is retired individually.
//
// The Supervisor is a single control loop that races three events: the next
// backup instant, the next update instant, and the application's own exit.
// Whichever resolves first runs its workflow; the workflows hand back the
// (possibly respawned) application process and the loop re-anchors its
// schedules. The loop never holds locks: all cross-task communication goes
// through channels, the one-way Shutdown broadcast, and the append-only
// journal.
package warden
