// Package config resolves the layered configuration described in spec §6:
// built-in defaults < committed codex-autorunner.yml < local
// codex-autorunner.override.yml < .codex-autorunner/config.yml <
// environment variables, using github.com/spf13/viper for the merge and
// gopkg.in/yaml.v3 for the authoritative on-disk documents (manifest and
// config.yml round-trip through hand-rolled structs, not
// map[string]interface{}, so unknown fields and comments aren't silently
// dropped on a rewrite).
//
// FindModeRoot performs the nearest-.codex-autorunner/config.yml walk-up
// that decides repo-vs-hub mode before any Viper instance is even
// constructed, per spec §6: "mismatched commands error with a clear
// message."
package config
