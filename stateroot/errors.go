package stateroot

import "errors"

// ErrConfigError is the sentinel wrapped by every failure in this package,
// matching the spec's "ConfigError" failure kind (fatal for the calling
// operation, never auto-retried).
var ErrConfigError = errors.New("stateroot: config error")
