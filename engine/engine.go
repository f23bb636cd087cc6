package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codex-autorunner/car/backend"
	"github.com/codex-autorunner/car/config"
	"github.com/codex-autorunner/car/flowstore"
	"github.com/codex-autorunner/car/lock"
	"github.com/codex-autorunner/car/orchestrator"
	"github.com/codex-autorunner/car/stateroot"
	"github.com/codex-autorunner/car/ticket"
)

// FlowType is the flow_type every Flow Run created by this package carries.
const FlowType = "ticket_flow"

// HintActiveRunReused is returned by Start when an active run already
// exists and force_new was not requested (spec §4.4 "start").
const HintActiveRunReused = "active_run_reused"

// Engine is bound to a single repo root; it holds no mutable state of its
// own beyond the fields below (all mutable state lives in the Flow Store
// and the repo lock file).
type Engine struct {
	RepoRoot string
	RepoID   string

	cfg    config.RepoConfig
	store  *flowstore.Store
	orch   *orchestrator.Orchestrator
	lock   *lock.Lock
	logger zerolog.Logger
}

// New binds an Engine to repoRoot. cfg is the already-resolved RepoConfig
// (config.LoadRepo); store and orch are shared across repos by the caller
// (typically the Hub Supervisor), one per process.
func New(repoRoot, repoID string, cfg config.RepoConfig, store *flowstore.Store, orch *orchestrator.Orchestrator, logger zerolog.Logger) (*Engine, error) {
	stateRoot, err := stateroot.RepoStateRoot(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigError, err)
	}
	return &Engine{
		RepoRoot: repoRoot,
		RepoID:   repoID,
		cfg:      cfg,
		store:    store,
		orch:     orch,
		lock:     lock.New(filepath.Join(stateRoot, "lock")),
		logger:   logger.With().Str("repo_id", repoID).Logger(),
	}, nil
}

func (e *Engine) ticketDir() string {
	return filepath.Join(e.RepoRoot, stateroot.StateDirName, "tickets")
}

func (e *Engine) runDir(runID string) string {
	return filepath.Join(e.RepoRoot, stateroot.StateDirName, "runs", runID)
}

// Start implements spec §4.4 "start(force_new?)".
func (e *Engine) Start(ctx context.Context, forceNew bool) (runID string, hint string, err error) {
	active, err := e.activeRun(ctx)
	if err != nil {
		return "", "", err
	}
	if active != nil {
		if !forceNew {
			return active.ID, HintActiveRunReused, nil
		}
		if err := e.supersede(ctx, active); err != nil {
			return "", "", err
		}
	}

	id := uuid.NewString()
	initial := flowState{}
	run, err := e.store.CreateRun(ctx, id, FlowType, initial.marshal())
	if err != nil {
		return "", "", fmt.Errorf("engine: create run: %w", err)
	}
	if _, err := e.appendEvent(ctx, run.ID, EventFlowStarted, nil, ""); err != nil {
		return "", "", err
	}
	if err := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusPending, nil); err != nil {
		return "", "", fmt.Errorf("engine: schedule run: %w", err)
	}
	e.logger.Info().Str("run_id", run.ID).Msg("flow started")
	return run.ID, "", nil
}

func (e *Engine) supersede(ctx context.Context, run *flowstore.FlowRun) error {
	if _, err := e.appendEvent(ctx, run.ID, EventFlowSuperseded, nil, ""); err != nil {
		return err
	}
	if err := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusSuperseded, nil); err != nil {
		return fmt.Errorf("engine: supersede run %s: %w", run.ID, err)
	}
	if err := e.lock.Release(); err != nil {
		e.logger.Warn().Err(err).Msg("release lock while superseding run")
	}
	return nil
}

// activeRun returns the single run in {pending,running,paused} for this
// repo's flow type, or nil if none.
func (e *Engine) activeRun(ctx context.Context) (*flowstore.FlowRun, error) {
	for _, status := range []flowstore.Status{flowstore.StatusRunning, flowstore.StatusPaused, flowstore.StatusPending} {
		runs, err := e.store.ListRuns(ctx, flowstore.ListFilter{FlowType: FlowType, Status: status, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("engine: list active runs: %w", err)
		}
		if len(runs) > 0 {
			r := runs[0]
			return &r, nil
		}
	}
	return nil, nil
}

// Step implements spec §4.4 "step()": acquires the repo lock once, then
// loops performing ticket-flow iterations until a stop condition is
// reached, releasing the lock before returning.
func (e *Engine) Step(ctx context.Context, runID string) error {
	run, err := e.getRun(ctx, runID)
	if err != nil {
		return err
	}

	recovered, err := e.lock.Acquire()
	if err != nil {
		if errors.Is(err, lock.ErrLockedAlive) {
			return ErrLockedAlive
		}
		return fmt.Errorf("engine: acquire lock: %w", err)
	}
	defer e.lock.Release()

	if recovered {
		if _, err := e.appendEvent(ctx, run.ID, EventLockRecovered, nil, ""); err != nil {
			return err
		}
	}

	if run.Status == flowstore.StatusPending {
		if err := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusRunning, nil); err != nil {
			return fmt.Errorf("engine: mark run running: %w", err)
		}
		run.Status = flowstore.StatusRunning
	}

	runStart := time.Now()
	for {
		outcome, err := e.stepOnce(ctx, run, runStart)
		if err != nil {
			return err
		}
		if outcome != outcomeContinue {
			return nil
		}
		run, err = e.getRun(ctx, run.ID)
		if err != nil {
			return err
		}
	}
}

type stepOutcome int

const (
	outcomeContinue stepOutcome = iota
	outcomeStopped
)

// stepOnce performs one ticket-flow iteration (spec §4.4 "step()" steps
// 2-8).
func (e *Engine) stepOnce(ctx context.Context, run *flowstore.FlowRun, runStart time.Time) (stepOutcome, error) {
	state := parseFlowState(run.State)

	if stopped, reason := e.checkStopConditions(state, runStart); stopped {
		if _, err := e.appendEvent(ctx, run.ID, EventFlowStopped, map[string]any{"reason": reason}, ""); err != nil {
			return outcomeStopped, err
		}
		if err := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusStopped, nil); err != nil {
			return outcomeStopped, fmt.Errorf("engine: mark run stopped: %w", err)
		}
		return outcomeStopped, nil
	}

	results, err := ticket.List(e.ticketDir())
	if err != nil {
		return outcomeStopped, fmt.Errorf("%w: list tickets: %v", ErrConfigError, err)
	}
	for _, r := range results {
		if r.Err != nil {
			if _, err := e.appendEvent(ctx, run.ID, EventTicketParseError, map[string]any{"path": r.Path, "error": r.Err.Error()}, ""); err != nil {
				return outcomeStopped, err
			}
		}
	}

	next := ticket.Next(results)
	if next == nil {
		if _, err := e.appendEvent(ctx, run.ID, EventFlowCompleted, nil, ""); err != nil {
			return outcomeStopped, err
		}
		if err := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusCompleted, nil); err != nil {
			return outcomeStopped, fmt.Errorf("engine: mark run completed: %w", err)
		}
		return outcomeStopped, nil
	}

	stepID := filepath.Base(next.Path)
	if _, err := e.appendEvent(ctx, run.ID, EventStepStarted, map[string]any{"ticket": stepID}, stepID); err != nil {
		return outcomeStopped, err
	}

	prompt := e.composePromptFor(next, state)

	session := backend.Session{
		ID:      fmt.Sprintf("ticket_flow.%s", e.RepoID),
		AgentID: e.cfg.AgentID,
		CWD:     e.RepoRoot,
		Prompt:  prompt,
	}

	turnCtx := ctx
	if e.cfg.TurnWallClockBudget != "" {
		if d, perr := time.ParseDuration(e.cfg.TurnWallClockBudget); perr == nil {
			var cancel context.CancelFunc
			turnCtx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	handle, err := e.orch.EnsureReady(turnCtx, e.RepoID, e.cfg.AgentID, e.cfg.Destination, session)
	if err != nil {
		if _, aerr := e.appendEvent(ctx, run.ID, EventFlowFailed, map[string]any{"kind": "BackendStartFailure", "error": err.Error()}, stepID); aerr != nil {
			return outcomeStopped, aerr
		}
		if serr := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusFailed, errPatch(err)); serr != nil {
			return outcomeStopped, fmt.Errorf("engine: mark run failed: %w", serr)
		}
		return outcomeStopped, nil
	}
	runLog, lerr := e.openRunLog(run.ID)
	if lerr != nil {
		e.logger.Warn().Err(lerr).Msg("open run.log for mirroring")
	}
	if runLog != nil {
		defer runLog.Close()
	}

	var deltaTail []string
	outcome, turnErr := e.drainTurn(ctx, run, stepID, handle, prompt, runLog, &deltaTail)
	if turnErr != nil {
		return outcomeStopped, turnErr
	}

	switch outcome.kind {
	case turnCompleted:
		if err := e.handleCompleted(ctx, run, stepID, outcome.ticketsTouched); err != nil {
			return outcomeStopped, err
		}
		state.TicketEngine.TicketTurns++
		state.TicketEngine.CurrentTicket = ""
		state.PriorRunTail = mergeTail(state.PriorRunTail, deltaTail, e.tailLines())
		if err := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusRunning, &flowstore.RunPatch{State: state.marshal()}); err != nil {
			return outcomeStopped, fmt.Errorf("engine: persist state: %w", err)
		}
		return outcomeContinue, nil

	case turnHandoff:
		if _, err := e.appendEvent(ctx, run.ID, EventHandoffRequested, map[string]any{"mode": outcome.handoffMode, "body": outcome.handoffBody}, stepID); err != nil {
			return outcomeStopped, err
		}
		if err := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusPaused, &flowstore.RunPatch{State: state.marshal()}); err != nil {
			return outcomeStopped, fmt.Errorf("engine: mark run paused: %w", err)
		}
		return outcomeStopped, nil

	case turnFailed:
		state.TicketEngine.Reason = outcome.failMessage
		if _, err := e.appendEvent(ctx, run.ID, EventFlowFailed, map[string]any{
			"kind":        outcome.failKind,
			"message":     outcome.failMessage,
			"recoverable": outcome.recoverable,
		}, stepID); err != nil {
			return outcomeStopped, err
		}
		if err := e.store.SetRunStatus(ctx, run.ID, flowstore.StatusFailed, &flowstore.RunPatch{
			State: state.marshal(),
			Error: &outcome.failMessage,
		}); err != nil {
			return outcomeStopped, fmt.Errorf("engine: mark run failed: %w", err)
		}
		return outcomeStopped, nil
	}

	return outcomeContinue, nil
}

func errPatch(err error) *flowstore.RunPatch {
	msg := err.Error()
	return &flowstore.RunPatch{Error: &msg}
}

func (e *Engine) composePromptFor(t *ticket.Ticket, state flowState) string {
	return ComposePrompt(PromptInputs{
		PriorRunTail:  state.PriorRunTail,
		WorkspaceDocs: e.loadWorkspaceDocs(),
		TicketNumber:  t.Number,
		TicketAgent:   t.Frontmatter.Agent,
		TicketTitle:   t.Frontmatter.Title,
		TicketBody:    t.Body,
		TailLines:     e.tailLines(),
		ByteCap:       e.byteCap(),
	})
}

func (e *Engine) tailLines() int {
	if e.cfg.PromptTailLines > 0 {
		return e.cfg.PromptTailLines
	}
	return defaultPromptTailLines
}

func (e *Engine) byteCap() int {
	if e.cfg.PromptByteCap > 0 {
		return e.cfg.PromptByteCap
	}
	return defaultPromptByteCap
}

func (e *Engine) loadWorkspaceDocs() []WorkspaceDoc {
	var docs []WorkspaceDoc
	for _, rel := range e.cfg.WorkspaceDocs {
		path := filepath.Join(e.RepoRoot, rel)
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				e.logger.Warn().Err(err).Str("path", path).Msg("read workspace doc")
			}
			continue
		}
		docs = append(docs, WorkspaceDoc{Path: rel, Content: string(data)})
	}
	return docs
}

func (e *Engine) openRunLog(runID string) (*os.File, error) {
	dir := e.runDir(runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, "run.log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// handleCompleted re-reads each ticket the backend claims to have touched
// and marks it done within the same critical section as the ticket_done
// event, per spec §3 invariant 6.
func (e *Engine) handleCompleted(ctx context.Context, run *flowstore.FlowRun, stepID string, touched []string) error {
	for _, name := range touched {
		path := filepath.Join(e.ticketDir(), name)
		t, err := ticket.ParseFile(path)
		if err != nil {
			continue
		}
		if t.Done() {
			continue
		}
		if err := t.MarkDone(); err != nil {
			return fmt.Errorf("engine: mark ticket done %s: %w", path, err)
		}
		if _, err := e.appendEvent(ctx, run.ID, EventTicketDone, map[string]any{"ticket": name}, stepID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) checkStopConditions(state flowState, runStart time.Time) (bool, string) {
	if state.StopRequested {
		return true, "user_stop"
	}
	if e.cfg.StopAfterRuns > 0 && state.TicketEngine.TicketTurns >= e.cfg.StopAfterRuns {
		return true, "stop_after_runs_exceeded"
	}
	if e.cfg.RunWallClockBudget != "" {
		if d, err := time.ParseDuration(e.cfg.RunWallClockBudget); err == nil {
			if time.Since(runStart) > d {
				return true, "run_wall_clock_budget_exceeded"
			}
		}
	}
	return false, ""
}

func mergeTail(prior, fresh []string, limit int) []string {
	merged := append(append([]string{}, prior...), fresh...)
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// Resume implements spec §4.4 "resume(run_id)".
func (e *Engine) Resume(ctx context.Context, runID string) error {
	run, err := e.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != flowstore.StatusPaused {
		return fmt.Errorf("%w: run %s is %s, not paused", ErrIllegalTransition, runID, run.Status)
	}
	if status, _, err := e.lock.Inspect(); err != nil {
		return fmt.Errorf("engine: inspect lock: %w", err)
	} else if status == lock.LockedAlive {
		return ErrLockedAlive
	}
	if err := e.store.SetRunStatus(ctx, runID, flowstore.StatusRunning, nil); err != nil {
		return fmt.Errorf("engine: resume run %s: %w", runID, err)
	}
	return e.Step(ctx, runID)
}

// Stop implements spec §4.4 "stop(run_id)": sets the cooperative stop flag;
// the running Step loop observes it between turns and appends
// flow_stopped itself.
func (e *Engine) Stop(ctx context.Context, runID string) error {
	run, err := e.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	state := parseFlowState(run.State)
	state.StopRequested = true
	if err := e.store.SetRunStatus(ctx, runID, run.Status, &flowstore.RunPatch{State: state.marshal()}); err != nil {
		return fmt.Errorf("engine: set stop flag on run %s: %w", runID, err)
	}
	return nil
}

// Archive implements spec §4.4 "archive(run_id)": moves completed/terminal
// tickets into the run's artifact directory, additionally pushing each one
// to S3 when config names a bucket (SPEC_FULL.md §B "Artifact off-box
// archive").
func (e *Engine) Archive(ctx context.Context, runID string) error {
	run, err := e.getRun(ctx, runID)
	if err != nil {
		return err
	}
	if !run.Status.Terminal() {
		return fmt.Errorf("%w: run %s is %s, not terminal", ErrIllegalTransition, runID, run.Status)
	}

	archiveDir := filepath.Join(e.runDir(runID), "tickets")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return fmt.Errorf("engine: mkdir archive dir: %w", err)
	}

	archiver, err := newS3Archiver(ctx, e.cfg.ArchiveS3Bucket, e.cfg.ArchiveS3Prefix)
	if err != nil {
		e.logger.Warn().Err(err).Msg("s3 archiver unavailable, archiving locally only")
		archiver = nil
	}

	results, err := ticket.List(e.ticketDir())
	if err != nil {
		return fmt.Errorf("engine: list tickets for archive: %w", err)
	}
	for _, r := range results {
		if r.Err != nil || r.Ticket == nil || !r.Ticket.Done() {
			continue
		}
		name := filepath.Base(r.Path)
		dest := filepath.Join(archiveDir, name)
		if err := os.Rename(r.Path, dest); err != nil {
			return fmt.Errorf("engine: archive ticket %s: %w", r.Path, err)
		}
		if _, err := e.store.RecordArtifact(ctx, runID, "archived_ticket", dest, nil); err != nil {
			return fmt.Errorf("engine: record archived ticket %s: %w", dest, err)
		}
		if archiver != nil {
			key, err := archiver.upload(ctx, e.RepoID, runID, name, dest)
			if err != nil {
				e.logger.Warn().Err(err).Str("ticket", name).Msg("s3 archive upload failed")
				continue
			}
			meta, _ := json.Marshal(map[string]string{"s3_bucket": e.cfg.ArchiveS3Bucket, "s3_key": key})
			if _, err := e.store.RecordArtifact(ctx, runID, "archived_ticket_s3", key, meta); err != nil {
				return fmt.Errorf("engine: record s3 archived ticket %s: %w", key, err)
			}
		}
	}
	return nil
}

func (e *Engine) getRun(ctx context.Context, runID string) (*flowstore.FlowRun, error) {
	runs, err := e.store.ListRuns(ctx, flowstore.ListFilter{FlowType: FlowType})
	if err != nil {
		return nil, fmt.Errorf("engine: list runs: %w", err)
	}
	for _, r := range runs {
		if r.ID == runID {
			run := r
			return &run, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

func (e *Engine) appendEvent(ctx context.Context, runID, eventType string, data map[string]any, stepID string) (int64, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return 0, fmt.Errorf("engine: marshal event data: %w", err)
		}
		raw = b
	}
	seq, err := e.store.AppendEvent(ctx, runID, eventType, raw, stepID)
	if err != nil {
		return 0, fmt.Errorf("engine: append event %s: %w", eventType, err)
	}
	return seq, nil
}
