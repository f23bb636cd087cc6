// Package optutil provides shared option resolution helpers for CLI backends.
package optutil

import "github.com/codex-autorunner/car/backend"

// RootOptionsSet reports whether either OptionMode or OptionHITL is present
// in opts. When true, root options take precedence over backend-specific
// permission/sandbox options.
func RootOptionsSet(opts map[string]string) bool {
	return opts[backend.OptionMode] != "" || opts[backend.OptionHITL] != ""
}
