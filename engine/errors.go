package engine

import "errors"

// Error kinds from the §7/§4.4 failure taxonomy. Each is a sentinel wrapped
// with fmt.Errorf("...: %w", ...) and matched with errors.Is, in the style
// of backend.ErrUnavailable/backend.ErrTerminated.
var (
	// ErrConfigError is fatal for the step but does not mark the flow
	// failed; the user must fix configuration and retry.
	ErrConfigError = errors.New("engine: config error")

	// ErrLockedAlive means another live process owns the repo lock;
	// step() refuses and emits no events.
	ErrLockedAlive = errors.New("engine: repo lock held by a live process")

	// ErrBackendStartFailure means ensure_ready failed even after the
	// orchestrator's bounded retry budget was exhausted.
	ErrBackendStartFailure = errors.New("engine: backend failed to start")

	// ErrIllegalTransition mirrors flowstore.ErrIllegalTransition for
	// operations the Engine itself rejects before ever reaching the store
	// (e.g. resume on a non-paused run).
	ErrIllegalTransition = errors.New("engine: illegal transition")

	// ErrRunNotFound mirrors flowstore.ErrRunNotFound for engine-level
	// callers that never need to import flowstore directly.
	ErrRunNotFound = errors.New("engine: run not found")
)

// Flow Event types (spec §3 "Flow Event", §4.4 operations). These are the
// literal event_type values written to the Flow Store.
const (
	EventFlowStarted       = "flow_started"
	EventStepStarted       = "step_started"
	EventAgentStarted      = "agent_started"
	EventAgentStreamDelta  = "agent_stream_delta"
	EventTokenUsage        = "token_usage"
	EventToolCall          = "tool_call"
	EventNotification      = "notification"
	EventHandoffRequested  = "handoff_requested"
	EventTicketDone        = "ticket_done"
	EventTicketsAdded      = "tickets_added"
	EventTicketParseError  = "ticket_parse_error"
	EventLockRecovered     = "lock_recovered"
	EventFlowCompleted     = "flow_completed"
	EventFlowFailed        = "flow_failed"
	EventFlowStopped       = "flow_stopped"
	EventFlowPaused        = "flow_paused"
	EventFlowSuperseded    = "flow_superseded"
)
