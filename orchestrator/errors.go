package orchestrator

import "errors"

var (
	// ErrBackendUnknown is returned when EnsureReady is called with an
	// agent_id that has no registered factory.
	ErrBackendUnknown = errors.New("orchestrator: unknown backend id")

	// ErrHandleClosed is returned when RunTurn is called on a nil handle or
	// on a handle after a successful Close. (Health reports such a handle
	// as not alive instead.)
	ErrHandleClosed = errors.New("orchestrator: handle closed")

	// ErrStartFailed wraps a persistent EnsureReady failure after the
	// retry budget (spec §7: default 3 attempts, 8s max wait) is
	// exhausted.
	ErrStartFailed = errors.New("orchestrator: backend start failed")
)
