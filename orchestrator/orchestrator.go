package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codex-autorunner/car/backend"
	"github.com/codex-autorunner/car/destination"
)

// BackendFactory constructs a fresh backend.Engine for one agent_id
// (codex, claude, opencode, or an ACP agent). Registered once per
// Orchestrator; EnsureReady calls it lazily, only for workspaces that
// actually select that agent_id.
type BackendFactory func() backend.Engine

// Handle is the live, reusable attachment EnsureReady returns. It wraps a
// single backend.Process for the lifetime of the workspace's supervisor —
// RunTurn sends and drains turns against the same Process; resume-capable
// backends (see backend.Engine docs) respawn their own subprocess
// internally between turns, so the Handle itself never needs to know
// whether a turn spawned a new OS process.
type Handle struct {
	WorkspaceID string
	BackendID   string
	ThreadID    string

	proc    backend.Process
	tr      *translator
	saved   ProcessRecord
	hasSave bool
}

// Orchestrator is the Backend Orchestrator: the Engine's only window onto
// concrete backend subprocesses. One Orchestrator is shared across every
// workspace the hub or repo process manages.
type Orchestrator struct {
	registry *Registry
	backoff  BackoffPolicy
	cooldown CooldownCache
	dockerRO destination.Runner // readiness probes only; see EnsureReady.

	mu        sync.Mutex
	factories map[string]BackendFactory
	handles   map[string]*Handle // workspace_id -> Handle
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithBackoffPolicy overrides DefaultBackoffPolicy.
func WithBackoffPolicy(p BackoffPolicy) Option {
	return func(o *Orchestrator) { o.backoff = p }
}

// WithCooldownCache overrides the default in-memory CooldownCache (e.g.
// with a RedisCooldownCache shared across processes).
func WithCooldownCache(c CooldownCache) Option {
	return func(o *Orchestrator) { o.cooldown = c }
}

// WithDockerReadinessRunner supplies the Runner EnsureReady uses to probe
// a docker destination before starting a backend against it.
func WithDockerReadinessRunner(r destination.Runner) Option {
	return func(o *Orchestrator) { o.dockerRO = r }
}

// New returns an Orchestrator persisting Managed Process Records under
// registry.
func New(registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  registry,
		backoff:   DefaultBackoffPolicy(),
		cooldown:  NewMemoryCooldownCache(),
		factories: make(map[string]BackendFactory),
		handles:   make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RegisterBackend associates agentID (config's agent_id, e.g. "codex")
// with the factory that builds its backend.Engine.
func (o *Orchestrator) RegisterBackend(agentID string, factory BackendFactory) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.factories[agentID] = factory
}

// EnsureReady starts or attaches to the supervisor for workspaceID,
// idempotent per workspace. dest is the repo's resolved effective
// destination (spec §4.3 "Destination wrapping"): invalid shapes fail
// fast via dest.Validate() before any subprocess is touched.
//
// Note on docker destinations: the CLI backends under backend/cli spawn
// and parse their own subprocess (rich JSON parsing is backend-specific
// and not exposed as swappable argv). This orchestrator validates the
// destination and, when dockerRO is configured, runs a cheap readiness
// probe inside the named container before starting the backend locally —
// it does not yet re-exec the agent's own subprocess through
// docker exec. See DESIGN.md for the tracked follow-up.
func (o *Orchestrator) EnsureReady(ctx context.Context, workspaceID, agentID string, dest destination.Destination, session backend.Session) (*Handle, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	if h, ok := o.handles[workspaceID]; ok {
		o.mu.Unlock()
		return h, nil
	}
	factory, ok := o.factories[agentID]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendUnknown, agentID)
	}

	if dest.Kind == destination.Docker && o.dockerRO != nil {
		if err := o.probeDocker(ctx, dest); err != nil {
			return nil, err
		}
	}

	engine := factory()
	var proc backend.Process
	err := o.backoff.retry(ctx, func(int) error {
		if verr := engine.Validate(); verr != nil {
			return verr
		}
		p, serr := engine.Start(ctx, session)
		if serr != nil {
			return serr
		}
		proc = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStartFailed, workspaceID, err)
	}

	h := &Handle{
		WorkspaceID: workspaceID,
		BackendID:   agentID,
		tr:          newTranslator(agentID),
		proc:        proc,
	}

	o.mu.Lock()
	o.handles[workspaceID] = h
	o.mu.Unlock()
	return h, nil
}

// probeDocker runs a trivial no-op command inside the destination's
// container, proving it is reachable before a backend is started against
// it.
func (o *Orchestrator) probeDocker(ctx context.Context, dest destination.Destination) error {
	_, err := o.dockerRO.Run(ctx, dest.Workdir, []string{"true"}, dest.Env, nil)
	if err != nil {
		return fmt.Errorf("%w: docker readiness probe for %s: %w", destination.ErrConfigError, dest.ContainerName, err)
	}
	return nil
}

// RunTurn executes a single turn against handle and invokes emit for each
// translated RunEvent, in order. The first emit call always carries
// KindStarted (mirroring backend.MessageInit) when the backend's stream
// produces one. If the underlying stream ends without a terminal
// Completed/Failed event, RunTurn synthesizes Failed{kind:"turn_crash",
// recoverable:true} itself — callers never have to special-case a bare
// channel close (spec §4.4 "TurnCrash").
func (o *Orchestrator) RunTurn(ctx context.Context, h *Handle, prompt string, emit func(RunEvent) error) error {
	if h == nil || h.proc == nil {
		return ErrHandleClosed
	}

	sawTerminal := false
	runErr := backend.RunTurn(ctx, h.proc, prompt, func(msg backend.Message) error {
		if msg.Type == backend.MessageInit {
			if msg.ThreadID != "" {
				h.ThreadID = msg.ThreadID
			}
			if msg.Process != nil && !h.hasSave {
				h.saved = ProcessRecord{
					WorkspaceID: h.WorkspaceID,
					Kind:        h.BackendID,
					BackendID:   h.BackendID,
					PID:         msg.Process.PID,
					Binary:      msg.Process.Binary,
					StartedAt:   time.Now(),
				}
				h.hasSave = true
				if err := o.registry.Write(h.saved); err != nil {
					return err
				}
			}
		}
		ev, ok := h.tr.translate(msg)
		if !ok {
			return nil
		}
		if ev.Kind == KindCompleted || ev.Kind == KindFailed {
			sawTerminal = true
		}
		if ev.Kind == KindNotification && ev.Notification.NotifyKind == "rate_limited" {
			_ = o.cooldown.Set(ctx, h.BackendID, rateLimitCooldown(ev.Notification.Payload))
		}
		return emit(ev)
	})

	if runErr != nil && !sawTerminal {
		return emit(RunEvent{
			Kind: KindFailed,
			Failed: &Failed{
				FailKind:    "turn_crash",
				Message:     runErr.Error(),
				Recoverable: true,
			},
		})
	}
	if runErr == nil && !sawTerminal {
		return emit(RunEvent{
			Kind: KindFailed,
			Failed: &Failed{
				FailKind:    "turn_crash",
				Message:     "backend stream ended without a terminal event",
				Recoverable: true,
			},
		})
	}
	return runErr
}

// Close releases handle's resources and removes its Managed Process
// Record only after Stop succeeds, per spec §4.3 "Supervisor lifecycle".
func (o *Orchestrator) Close(ctx context.Context, h *Handle) error {
	if h == nil || h.proc == nil {
		return nil
	}
	err := h.proc.Stop(ctx)

	o.mu.Lock()
	delete(o.handles, h.WorkspaceID)
	o.mu.Unlock()

	if err != nil {
		return fmt.Errorf("orchestrator: stop %s: %w", h.WorkspaceID, err)
	}
	h.proc = nil
	if h.hasSave {
		return o.registry.Remove(h.saved)
	}
	return nil
}

// Health reports whether handle's subprocess is still alive. It reads
// Process.Err(), which the backend contract defines as nil until the
// Output channel closes — so a process mid-turn correctly reports alive
// even though Err() hasn't observed a terminal state yet. Health never
// reads Output() itself: doing so would steal a message a concurrent
// RunTurn still needs to see.
func (o *Orchestrator) Health(h *Handle) (alive bool, detail string) {
	if h == nil || h.proc == nil {
		return false, "no handle"
	}
	if err := h.proc.Err(); err != nil {
		return false, err.Error()
	}
	return true, ""
}
