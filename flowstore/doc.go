// Package flowstore is the durable, transactional log of flow runs, flow
// events, and flow artifacts — the sole source of truth for run history.
// One SQLite database file backs a single repo ("flows.db"); every read
// and write goes through this package, never direct filesystem scanning
// (§3 invariant 5, "artifact truth").
package flowstore
