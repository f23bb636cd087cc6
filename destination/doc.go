// Package destination resolves and wraps a repo's execution target before
// the Backend Orchestrator spawns a backend: either "local" (no wrapping)
// or "docker" (the command runs inside a named container via the Docker
// Engine API's exec methods, never by shelling out to the `docker` CLI).
package destination
