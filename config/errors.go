package config

import "errors"

var (
	// ErrConfigError wraps any problem resolving configuration: an
	// unreadable file, invalid YAML, or an unrecognized mode value. A mode
	// that doesn't match the command being run is ErrModeMismatch instead.
	ErrConfigError = errors.New("config: error")

	// ErrModeMismatch is returned when the nearest .codex-autorunner
	// directory's config.yml declares a mode that disagrees with the
	// mode the caller expected (e.g. a hub command run inside a repo).
	ErrModeMismatch = errors.New("config: mode mismatch")

	// ErrNotFound is returned by FindModeRoot when no .codex-autorunner
	// directory exists between the start directory and the filesystem
	// root.
	ErrNotFound = errors.New("config: no .codex-autorunner directory found")
)
