package orchestrator

import "encoding/json"

// Kind discriminates a RunEvent's variant.
type Kind string

const (
	KindStarted          Kind = "started"
	KindDelta            Kind = "delta"
	KindTokenUsage       Kind = "token_usage"
	KindToolCall         Kind = "tool_call"
	KindNotification     Kind = "notification"
	KindHandoffRequested Kind = "handoff_requested"
	KindCompleted        Kind = "completed"
	KindFailed           Kind = "failed"
)

// HandoffMode is the posture requested by a HandoffRequested event.
type HandoffMode string

const (
	// HandoffPause asks the Engine to stop scheduling turns until resumed.
	HandoffPause HandoffMode = "pause"

	// HandoffNotify is advisory only; the Engine keeps running.
	HandoffNotify HandoffMode = "notify"
)

// RunEvent is the protocol-neutral event the Backend Orchestrator emits,
// normalized across every concrete backend. Exactly one of the variant
// fields is populated, selected by Kind; this mirrors backend.Message's own
// single-struct-with-typed-fields shape rather than a Go interface, so
// callers can switch on Kind the same way they already switch on
// backend.MessageType.
type RunEvent struct {
	Kind Kind `json:"kind"`

	Started          *Started          `json:"started,omitempty"`
	Delta            *Delta            `json:"delta,omitempty"`
	TokenUsage       *TokenUsage       `json:"token_usage,omitempty"`
	ToolCall         *ToolCall         `json:"tool_call,omitempty"`
	Notification     *Notification     `json:"notification,omitempty"`
	HandoffRequested *HandoffRequested `json:"handoff_requested,omitempty"`
	Completed        *Completed        `json:"completed,omitempty"`
	Failed           *Failed           `json:"failed,omitempty"`
}

// Started opens a turn. The Engine reads ThreadID/TurnID from here rather
// than parsing backend-native notifications (spec §4.3 "Thread/turn
// session tracking").
type Started struct {
	BackendID string `json:"backend_id"`
	ThreadID  string `json:"thread_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
}

// Delta is a streaming text fragment, mirrored verbatim to a run's
// run.log artifact by the Engine.
type Delta struct {
	Text string `json:"text"`
}

// TokenUsage reports cumulative token consumption for the turn so far.
type TokenUsage struct {
	TotalTokens        int `json:"total_tokens"`
	ModelContextWindow int `json:"model_context_window,omitempty"`
}

// ToolCall reports a tool invocation lifecycle step.
type ToolCall struct {
	Name    string `json:"name"`
	Status  string `json:"status,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Notification is an opaque backend signal that does not fit a more
// specific variant (e.g. kind "rate_limited"). Payload is left as raw JSON
// rather than normalized further: the Engine and hub surface branch on Kind
// and treat Payload as advisory detail, never as canonical state.
type Notification struct {
	NotifyKind string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// HandoffRequested asks the Engine to pause (or merely notes, for Notify)
// scheduling until a human acts.
type HandoffRequested struct {
	Mode        HandoffMode `json:"mode"`
	Title       string      `json:"title,omitempty"`
	Body        string      `json:"body,omitempty"`
	Attachments []string    `json:"attachments,omitempty"`
}

// Completed is a turn's terminal success. TicketsTouched is populated
// best-effort from whatever the backend self-reports; the Engine always
// re-derives ground truth from ticket frontmatter afterward (spec §4.4
// step 5), so an empty slice here is not itself an error.
type Completed struct {
	Summary        string   `json:"summary"`
	TicketsTouched []string `json:"tickets_touched,omitempty"`
}

// Failed is a turn's terminal failure. Recoverable distinguishes a
// transient subprocess crash (orchestrator will restart the supervisor on
// the next EnsureReady; the turn itself is not auto-retried) from a
// backend-reported agent failure (flow moves to failed).
type Failed struct {
	FailKind    string `json:"kind"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}
