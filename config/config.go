package config

import "github.com/codex-autorunner/car/destination"

// RepoConfig is the resolved configuration for a repo-mode process
// (spec §6 "<repo_root>/.codex-autorunner/config.yml").
type RepoConfig struct {
	Version int  `yaml:"version" mapstructure:"version"`
	Mode    Mode `yaml:"mode" mapstructure:"mode"`

	// AgentID selects the Backend Orchestrator factory (config's
	// agent_id — "codex", "claude", "opencode", or an ACP agent name).
	AgentID string `yaml:"agent_id" mapstructure:"agent_id"`

	// Destination is the repo's effective execution target.
	Destination destination.Destination `yaml:"destination,omitempty" mapstructure:"destination"`

	// StopAfterRuns caps how many ticket-flow steps a single Engine.start
	// will take before stopping itself; 0 means unbounded.
	StopAfterRuns int `yaml:"stop_after_runs,omitempty" mapstructure:"stop_after_runs"`

	// RunWallClockBudget and TurnWallClockBudget bound a flow run and a
	// single turn respectively, as Go duration strings (e.g. "2h", "5m").
	// Empty means unbounded.
	RunWallClockBudget  string `yaml:"run_wall_clock_budget,omitempty" mapstructure:"run_wall_clock_budget"`
	TurnWallClockBudget string `yaml:"turn_wall_clock_budget,omitempty" mapstructure:"turn_wall_clock_budget"`

	// PromptTailLines caps how many lines of the prior run's final Delta
	// text are carried into the next prompt (spec §4.4 "Prompt
	// composition").
	PromptTailLines int `yaml:"prompt_tail_lines,omitempty" mapstructure:"prompt_tail_lines"`

	// PromptByteCap is the hard byte ceiling on a composed prompt.
	PromptByteCap int `yaml:"prompt_byte_cap,omitempty" mapstructure:"prompt_byte_cap"`

	// WorkspaceDocs is the whitelist of repo-relative paths the prompt
	// composer may excerpt from (spec §3 "workspace documents").
	WorkspaceDocs []string `yaml:"workspace_docs,omitempty" mapstructure:"workspace_docs"`

	// BackoffMaxAttempts and BackoffMaxWaitSeconds override the
	// orchestrator's default retry policy (spec §7: default 3, 8s cap).
	BackoffMaxAttempts    int `yaml:"backoff_max_attempts,omitempty" mapstructure:"backoff_max_attempts"`
	BackoffMaxWaitSeconds int `yaml:"backoff_max_wait_seconds,omitempty" mapstructure:"backoff_max_wait_seconds"`

	// ArchiveS3Bucket, when non-empty, makes Archive additionally push each
	// archived ticket to this S3-compatible bucket (SPEC_FULL.md §B
	// "Artifact off-box archive"). Left empty, archive stays local-disk-only.
	ArchiveS3Bucket string `yaml:"archive_s3_bucket,omitempty" mapstructure:"archive_s3_bucket"`
	ArchiveS3Prefix string `yaml:"archive_s3_prefix,omitempty" mapstructure:"archive_s3_prefix"`
}

// HubConfig is the resolved configuration for a hub-mode process
// (spec §6 "<hub_root>/.codex-autorunner/config.yml").
type HubConfig struct {
	Version int  `yaml:"version" mapstructure:"version"`
	Mode    Mode `yaml:"mode" mapstructure:"mode"`

	// ReposRoot is the directory scanned for repo candidates (spec §4.5
	// "Discovery": depth-1 children containing .git).
	ReposRoot string `yaml:"repos_root,omitempty" mapstructure:"repos_root"`

	// AutoInitMissing controls whether newly discovered repos are
	// initialized idempotently (spec §4.5 "Discovery").
	AutoInitMissing bool `yaml:"auto_init_missing,omitempty" mapstructure:"auto_init_missing"`

	// ScanCron is a robfig/cron/v3 schedule expression for periodic
	// housekeeping scans (e.g. "@every 5m").
	ScanCron string `yaml:"scan_cron,omitempty" mapstructure:"scan_cron"`
}

// DefaultRepoConfig returns the built-in defaults layer for repo mode —
// the bottom of the §6 precedence stack.
func DefaultRepoConfig() RepoConfig {
	return RepoConfig{
		Version:               2,
		Mode:                  ModeRepo,
		AgentID:               "codex",
		Destination:           destination.Destination{Kind: destination.Local},
		PromptTailLines:       200,
		PromptByteCap:         200_000,
		BackoffMaxAttempts:    3,
		BackoffMaxWaitSeconds: 8,
	}
}

// DefaultHubConfig returns the built-in defaults layer for hub mode.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		Version:         2,
		Mode:            ModeHub,
		AutoInitMissing: true,
		ScanCron:        "@every 5m",
	}
}
