// Package hub implements the Hub Supervisor: multi-repo fan-out over the
// per-repo Engine. It owns discovery against a manifest of tracked repos,
// idempotent per-repo initialization, a per-repo status model derived from
// the repo lock and its active Flow Run, worktree lifecycle, and
// parallel start/stop/resume across repos serialized per repo id.
package hub
