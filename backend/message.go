package backend

import (
	"encoding/json"
	"time"
)

// MessageType identifies the kind of message from a backend process.
type MessageType string

const (
	// MessageText is assistant text output.
	MessageText MessageType = "text"

	// MessageToolUse indicates the agent is invoking a tool.
	MessageToolUse MessageType = "tool_use"

	// MessageToolResult contains the output of a tool invocation.
	MessageToolResult MessageType = "tool_result"

	// MessageError indicates an error from the agent or runtime.
	MessageError MessageType = "error"

	// MessageSystem contains system-level messages (e.g., status changes,
	// rate-limit notices).
	MessageSystem MessageType = "system"

	// MessageInit is the handshake message sent at session start. The
	// orchestrator reads ThreadID/TurnID identity from this message.
	MessageInit MessageType = "init"

	// MessageEOF signals the end of the message stream.
	MessageEOF MessageType = "eof"

	// MessageResult is the turn's terminal, complete response.
	MessageResult MessageType = "result"

	// MessageTextDelta is a streaming partial text fragment.
	MessageTextDelta MessageType = "text_delta"

	// MessageToolUseDelta is a streaming partial tool-invocation fragment.
	MessageToolUseDelta MessageType = "tool_use_delta"

	// MessageThinking is a complete reasoning block.
	MessageThinking MessageType = "thinking"

	// MessageThinkingDelta is a streaming partial reasoning fragment.
	MessageThinkingDelta MessageType = "thinking_delta"
)

// Message is a structured output from a backend process. This is the native
// vocabulary CLI and ACP engines speak; the orchestrator package translates
// a Message stream into the protocol-neutral RunEvent stream the
// ticket-flow Engine consumes.
type Message struct {
	// Type identifies the kind of message.
	Type MessageType `json:"type"`

	// Content is the text content (for Text, Error, System messages).
	Content string `json:"content,omitempty"`

	// ErrorCode is the backend's short error code, when it reports one
	// (for Error messages).
	ErrorCode string `json:"error_code,omitempty"`

	// Tool contains tool invocation details (for ToolUse, ToolResult messages).
	Tool *ToolCall `json:"tool,omitempty"`

	// Usage contains token usage data (typically on Text/Result messages).
	Usage *Usage `json:"usage,omitempty"`

	// ThreadID/TurnID identify the backend-native conversation this message
	// belongs to. Populated on MessageInit; the orchestrator captures them
	// from there rather than parsing backend-native notifications.
	ThreadID string `json:"thread_id,omitempty"`
	TurnID   string `json:"turn_id,omitempty"`

	// StopReason carries a backend's explanation for why a turn ended.
	// Some backends report it out-of-band from the terminal message; see
	// the CLI adapter's carry-forward handling.
	StopReason StopReason `json:"stop_reason,omitempty"`

	// Process carries subprocess metadata, populated on MessageInit only.
	Process *ProcessMeta `json:"process,omitempty"`

	// Init carries backend identity/model metadata surfaced during the
	// session handshake. Populated on MessageInit by backends that expose
	// it (acp only, from initialize/session/new); nil otherwise.
	Init *InitMeta `json:"init,omitempty"`

	// Raw is the original unparsed JSON from the backend.
	// Backends populate this for pass-through or debugging.
	Raw json.RawMessage `json:"raw,omitempty"`

	// RawLine is the original unparsed output line from stdout.
	// Used for crash-recovery log pipelines and audit logging.
	RawLine string `json:"raw_line,omitempty"`

	// Timestamp is when the message was produced.
	Timestamp time.Time `json:"timestamp"`
}

// InitMeta carries backend identity/model metadata resolved during session
// handshake, when the backend exposes one (acp's initialize + session/new).
type InitMeta struct {
	AgentName    string `json:"agent_name,omitempty"`
	AgentVersion string `json:"agent_version,omitempty"`
	Model        string `json:"model,omitempty"`
}

// ToolCall describes a tool invocation by the agent.
type ToolCall struct {
	// Name is the tool identifier.
	Name string `json:"name"`

	// Status is the tool call's lifecycle state ("started", "completed",
	// "failed"). Empty for backends that report tool calls atomically.
	Status string `json:"status,omitempty"`

	// Input is the tool's input parameters as raw JSON.
	Input json.RawMessage `json:"input,omitempty"`

	// Output is the tool's result as raw JSON.
	Output json.RawMessage `json:"output,omitempty"`

	// Summary is a short human-readable description of the call, when the
	// backend provides one directly instead of raw input/output.
	Summary string `json:"summary,omitempty"`
}

// Usage contains token usage data from the agent's model.
type Usage struct {
	// InputTokens is the cumulative context window fill.
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the number of tokens generated.
	OutputTokens int `json:"output_tokens"`

	// ModelContextWindow is the model's total context window size, when the
	// backend reports it.
	ModelContextWindow int `json:"model_context_window,omitempty"`

	// CacheReadTokens is the number of input tokens served from the prompt cache.
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`

	// CacheWriteTokens is the number of input tokens written to the prompt cache.
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`

	// ThinkingTokens is the number of tokens spent on reasoning.
	ThinkingTokens int `json:"thinking_tokens,omitempty"`

	// CostUSD is the turn's cost in US dollars, when the backend reports it.
	CostUSD float64 `json:"cost_usd,omitempty"`
}
