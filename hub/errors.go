package hub

import "errors"

var (
	// ErrConfigError wraps hub-level config or filesystem resolution
	// failures, mirroring the sentinel shape used by stateroot/config.
	ErrConfigError = errors.New("hub: config error")

	// ErrRepoNotFound means the manifest has no entry for the given id.
	ErrRepoNotFound = errors.New("hub: repo not found")

	// ErrRepoDisabled means the manifest entry exists but enabled=false.
	ErrRepoDisabled = errors.New("hub: repo disabled")

	// ErrHubLockedAlive means another live process already holds this
	// hub's lock file; Open refuses to start a second supervisor in the
	// same directory.
	ErrHubLockedAlive = errors.New("hub: hub lock held by a live process")
)

// Status is a repo's aggregated state as seen by the Hub Supervisor (spec
// §4.5 "Per-repo status model").
type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusInitializing  Status = "INITIALIZING"
	StatusIdle          Status = "IDLE"
	StatusRunning       Status = "RUNNING"
	StatusLocked        Status = "LOCKED"
	StatusPaused        Status = "PAUSED"
	StatusError         Status = "ERROR"
	StatusInitError     Status = "INIT_ERROR"
	StatusMissing       Status = "MISSING"
)
