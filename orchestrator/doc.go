// Package orchestrator implements the Backend Orchestrator: the single
// protocol-agnostic boundary between the ticket-flow Engine and concrete
// backend subprocesses (backend/cli, backend/acp).
//
// The Engine never imports a backend-specific package and never sees a
// backend.Message. It calls EnsureReady/RunTurn/Close/Health and consumes a
// stream of normalized RunEvent values. This package owns every long-lived
// subprocess: it resolves the repo's Destination (local or docker), starts
// or attaches to the underlying engine, tracks the workspace-to-thread
// mapping across turns, retries transient ensure_ready failures with
// backoff, and persists a Managed Process Record for every process it owns.
package orchestrator
