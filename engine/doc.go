// Package engine implements the ticket-flow state machine (spec §4.4):
// one Engine bound to a single repo root, driving Flow Runs through
// start/step/resume/stop/archive by composing prompts from tickets and
// workspace documents, handing turns to a Backend Orchestrator, and
// persisting every outcome to a Flow Store. An Engine holds no mutable
// global state; all of it lives in the Flow Store and the repo lock file.
package engine
