package orchestrator

import (
	"encoding/json"

	"github.com/codex-autorunner/car/backend"
)

// translator converts one backend's Message stream into RunEvents. It is
// stateful only in the sense of remembering the backend_id it was built
// for; thread/turn identity itself is carried entirely by the Started
// event derived from backend.MessageInit, per spec §4.3.
type translator struct {
	backendID string
}

func newTranslator(backendID string) *translator {
	return &translator{backendID: backendID}
}

// translate converts a single backend.Message to a RunEvent. ok is false
// for messages that carry no independent RunEvent (MessageEOF): stream-end
// bookkeeping is the caller's job, not the translator's.
func (t *translator) translate(msg backend.Message) (RunEvent, bool) {
	switch msg.Type {
	case backend.MessageInit:
		return RunEvent{
			Kind: KindStarted,
			Started: &Started{
				BackendID: t.backendID,
				ThreadID:  msg.ThreadID,
				TurnID:    msg.TurnID,
			},
		}, true

	case backend.MessageText, backend.MessageTextDelta:
		if ev, ok := t.usageEvent(msg); ok {
			// A message can carry both text and usage; usage wins when
			// both are present since RunEvent has no combined variant,
			// and usage is needed at finer granularity than text is.
			return ev, true
		}
		return RunEvent{Kind: KindDelta, Delta: &Delta{Text: msg.Content}}, true

	case backend.MessageThinkingDelta:
		// Internal reasoning never reaches run.log (which mirrors Delta
		// text verbatim); surface it as an opaque notification instead.
		return RunEvent{
			Kind: KindNotification,
			Notification: &Notification{
				NotifyKind: "thinking_delta",
				Payload:    mustJSON(msg.Content),
			},
		}, true

	case backend.MessageToolUse, backend.MessageToolUseDelta, backend.MessageToolResult:
		if msg.Tool == nil {
			return RunEvent{}, false
		}
		return RunEvent{
			Kind: KindToolCall,
			ToolCall: &ToolCall{
				Name:    msg.Tool.Name,
				Status:  msg.Tool.Status,
				Summary: msg.Tool.Summary,
			},
		}, true

	case backend.MessageSystem:
		if ev, ok := decodeHandoff(msg.Content); ok {
			return ev, true
		}
		payload := msg.Raw
		if len(payload) == 0 {
			payload = mustJSON(msg.Content)
		}
		return RunEvent{
			Kind: KindNotification,
			Notification: &Notification{
				NotifyKind: systemNotificationKind(msg),
				Payload:    payload,
			},
		}, true

	case backend.MessageResult:
		return RunEvent{
			Kind: KindCompleted,
			Completed: &Completed{
				Summary:        msg.Content,
				TicketsTouched: decodeTicketsTouched(msg.Raw),
			},
		}, true

	case backend.MessageError:
		return RunEvent{
			Kind: KindFailed,
			Failed: &Failed{
				FailKind:    "agent_error",
				Message:     msg.Content,
				Recoverable: false,
			},
		}, true

	case backend.MessageEOF:
		return RunEvent{}, false

	default:
		return RunEvent{}, false
	}
}

// usageEvent extracts a TokenUsage RunEvent when msg carries Usage data.
func (t *translator) usageEvent(msg backend.Message) (RunEvent, bool) {
	if msg.Usage == nil {
		return RunEvent{}, false
	}
	return RunEvent{
		Kind: KindTokenUsage,
		TokenUsage: &TokenUsage{
			TotalTokens:        msg.Usage.InputTokens + msg.Usage.OutputTokens,
			ModelContextWindow: msg.Usage.ModelContextWindow,
		},
	}, true
}

// systemNotificationKind classifies a MessageSystem into a Notification
// kind. "rate_limited" is the one kind the Engine and hub surface branch
// on directly (spec §4.3 "Failure semantics"); everything else passes
// through as "system".
func systemNotificationKind(msg backend.Message) string {
	var probe struct {
		Kind string `json:"kind"`
	}
	if len(msg.Raw) > 0 {
		_ = json.Unmarshal(msg.Raw, &probe)
	}
	if probe.Kind == "rate_limited" {
		return "rate_limited"
	}
	return "system"
}

// handoffPayload is the convention a backend uses to request a handoff:
// a MessageSystem whose Content is this JSON object. No in-pack backend
// emits this natively (none of them know about ticket-flow handoffs), so
// this is the documented, versioned extension point future backends (or
// a prompt-level contract instructing the agent to emit it) target.
type handoffPayload struct {
	Handoff     bool        `json:"handoff"`
	Mode        HandoffMode `json:"mode"`
	Title       string      `json:"title,omitempty"`
	Body        string      `json:"body,omitempty"`
	Attachments []string    `json:"attachments,omitempty"`
}

func decodeHandoff(content string) (RunEvent, bool) {
	var p handoffPayload
	if err := json.Unmarshal([]byte(content), &p); err != nil || !p.Handoff {
		return RunEvent{}, false
	}
	mode := p.Mode
	if mode == "" {
		mode = HandoffNotify
	}
	return RunEvent{
		Kind: KindHandoffRequested,
		HandoffRequested: &HandoffRequested{
			Mode:        mode,
			Title:       p.Title,
			Body:        p.Body,
			Attachments: p.Attachments,
		},
	}, true
}

// decodeTicketsTouched best-effort extracts a "tickets_touched" array from
// a MessageResult's raw JSON, when the backend's protocol happens to carry
// one. Absence is normal — the Engine always re-derives ground truth from
// ticket frontmatter regardless (spec §4.4 step 5).
func decodeTicketsTouched(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var probe struct {
		TicketsTouched []string `json:"tickets_touched"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil
	}
	return probe.TicketsTouched
}

func mustJSON(s string) json.RawMessage {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}
