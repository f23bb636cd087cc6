// Package backend defines the protocol-neutral contract a concrete coding
// agent exposes: a [Session] in, a stream of native [Message] values out.
//
// This is the subprocess-native layer. Callers that manage a fleet of
// backends across repos (start/stop, retry, thread tracking) sit above
// this package and translate a Message stream into their own event
// vocabulary; this package stays agnostic of that translation.
//
// No caller of this package ever imports a backend-specific package
// (backend/cli/codex, backend/cli/claude, ...) directly when all it needs
// is the Engine/Process contract. Concrete backends live under backend/cli
// (subprocess CLIs: codex, claude, opencode) and backend/acp (JSON-RPC
// agents over stdio).
//
// Quick start:
//
//	eng := cli.NewEngine(codex.New())
//	proc, err := eng.Start(ctx, backend.Session{ID: "s1", CWD: repoRoot, Prompt: "..."})
//	for msg := range proc.Output() { ... }
package backend
