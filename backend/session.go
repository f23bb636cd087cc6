package backend

import "maps"

// Session is the minimal session state passed to engines.
//
// Session is a value type — it carries identity and configuration but
// no runtime state (no mutexes, no channels, no process handles). The
// ticket-flow Engine builds one fresh Session per turn.
type Session struct {
	// ID uniquely identifies the session (typically ticket_flow.<repo_id>).
	ID string `json:"id"`

	// AgentID identifies which backend configuration to use (config's
	// agent_id, e.g. "codex", "claude", "opencode").
	AgentID string `json:"agent_id,omitempty"`

	// CWD is the working directory for the agent process. Always the repo
	// root (or worktree root), never the container path.
	CWD string `json:"cwd"`

	// Model specifies the AI model to use (e.g., "claude-sonnet-4-5-20250514").
	Model string `json:"model,omitempty"`

	// Prompt is the initial prompt for the session (the composed ticket-flow
	// prompt — see engine.ComposePrompt).
	Prompt string `json:"prompt,omitempty"`

	// Options holds backend-specific key-value configuration, plus the
	// cross-cutting vocabulary defined in vocabulary.go (OptionMode,
	// OptionHITL, OptionEffort, OptionMaxTurns, OptionResumeID, OptionAddDirs).
	Options map[string]string `json:"options,omitempty"`

	// Env holds explicit environment variable overrides forwarded to the
	// subprocess (merged over the orchestrator's own environment, and over
	// any env_passthrough/env declared on the repo's Destination).
	Env map[string]string `json:"env,omitempty"`
}

// Clone returns a deep copy of s, cloning the Options and Env maps so that
// mutations by the caller or the engine never alias the original Session.
func (s Session) Clone() Session {
	if s.Options != nil {
		s.Options = maps.Clone(s.Options)
	}
	if s.Env != nil {
		s.Env = maps.Clone(s.Env)
	}
	return s
}
