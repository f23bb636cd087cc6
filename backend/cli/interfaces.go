package cli

// This file will define the consumer-side interfaces for CLI backends:
//
//   - Spawner   — builds and starts subprocess commands
//   - Parser    — transforms raw output lines into backend.Message values
//   - Resumer   — optional: resumes an existing session (type-assertion capability)
//   - Streamer  — optional: starts a subprocess that takes further input on a persistent stdin pipe
//
// Interfaces are defined here (at the consumer side) rather than in backend
// packages, following Go interface ownership conventions. Backend packages
// (claude, opencode) provide concrete implementations.
