// Package obslog builds the single zerolog.Logger threaded through the
// Engine, Hub Supervisor, and Backend Orchestrator as a plain constructor
// argument — never a package-level global, so multiple repos (or a hub
// plus its managed repos) in one process never share or clobber each
// other's log state.
//
// Every logger mirrors its output into a rotating file (10 MB, 3 backups,
// matching the filesystem layout's codex-autorunner.log /
// codex-autorunner-hub.log) alongside a human-readable console stream.
package obslog
