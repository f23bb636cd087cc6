package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/codex-autorunner/car/flowstore"
	"github.com/codex-autorunner/car/orchestrator"
)

type turnOutcomeKind int

const (
	turnCompleted turnOutcomeKind = iota
	turnHandoff
	turnFailed
)

// turnOutcome summarizes the turn's single terminal RunEvent
// (Completed/HandoffRequested/Failed) for stepOnce to act on — the
// specific Flow Events those imply (ticket_done, handoff_requested,
// flow_failed) are appended by stepOnce itself, not here, since deciding
// which tickets transitioned or whether the flow is paused or failed
// needs state stepOnce alone holds.
type turnOutcome struct {
	kind turnOutcomeKind

	ticketsTouched []string

	handoffMode string
	handoffBody string

	failKind    string
	failMessage string
	recoverable bool
}

// drainTurn runs one backend turn via the orchestrator. Every streaming
// RunEvent (Started/Delta/TokenUsage/ToolCall/Notification) is appended to
// the Flow Store as its own Flow Event; Delta text is additionally mirrored
// into runLog (SPEC_FULL.md §C: "mirror only Delta text into run.log while
// still persisting every RunEvent to the Flow Store") and accumulated into
// *deltaTail for the next turn's prior-run-tail prompt input. The turn's
// single terminal event is captured into the returned turnOutcome instead
// of being logged here.
func (e *Engine) drainTurn(ctx context.Context, run *flowstore.FlowRun, stepID string, handle *orchestrator.Handle, prompt string, runLog io.Writer, deltaTail *[]string) (turnOutcome, error) {
	var outcome turnOutcome
	var pendingTail strings.Builder

	err := e.orch.RunTurn(ctx, handle, prompt, func(ev orchestrator.RunEvent) error {
		switch ev.Kind {
		case orchestrator.KindStarted:
			_, err := e.appendEvent(ctx, run.ID, EventAgentStarted, marshalField(ev.Started), stepID)
			return err

		case orchestrator.KindDelta:
			if ev.Delta != nil {
				pendingTail.WriteString(ev.Delta.Text)
				if runLog != nil {
					_, _ = io.WriteString(runLog, ev.Delta.Text)
				}
			}
			_, err := e.appendEvent(ctx, run.ID, EventAgentStreamDelta, marshalField(ev.Delta), stepID)
			return err

		case orchestrator.KindTokenUsage:
			_, err := e.appendEvent(ctx, run.ID, EventTokenUsage, marshalField(ev.TokenUsage), stepID)
			return err

		case orchestrator.KindToolCall:
			_, err := e.appendEvent(ctx, run.ID, EventToolCall, marshalField(ev.ToolCall), stepID)
			return err

		case orchestrator.KindNotification:
			_, err := e.appendEvent(ctx, run.ID, EventNotification, marshalField(ev.Notification), stepID)
			return err

		case orchestrator.KindCompleted:
			outcome = turnOutcome{kind: turnCompleted}
			if ev.Completed != nil {
				outcome.ticketsTouched = ev.Completed.TicketsTouched
			}

		case orchestrator.KindHandoffRequested:
			outcome = turnOutcome{kind: turnHandoff}
			if ev.HandoffRequested != nil {
				outcome.handoffMode = string(ev.HandoffRequested.Mode)
				outcome.handoffBody = ev.HandoffRequested.Body
			}

		case orchestrator.KindFailed:
			outcome = turnOutcome{kind: turnFailed}
			if ev.Failed != nil {
				outcome.failKind = ev.Failed.FailKind
				outcome.failMessage = ev.Failed.Message
				outcome.recoverable = ev.Failed.Recoverable
			}
		}
		return nil
	})
	if err != nil {
		return outcome, fmt.Errorf("engine: run turn: %w", err)
	}

	if pendingTail.Len() > 0 {
		*deltaTail = append(*deltaTail, splitLines(pendingTail.String())...)
	}
	return outcome, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// marshalField flattens any of RunEvent's typed payload structs into a
// map[string]any for Flow Event storage by round-tripping through JSON —
// simplest way to reuse each struct's own json tags without a duplicate
// field-by-field switch.
func marshalField(v any) map[string]any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
