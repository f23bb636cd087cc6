package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Mode is the operating mode a .codex-autorunner/config.yml declares.
type Mode string

const (
	ModeRepo Mode = "repo"
	ModeHub  Mode = "hub"
)

// modeProbe reads just enough of config.yml to decide mode before any
// Viper instance exists — full layered resolution happens afterward, once
// mode (and therefore which file layers apply) is known.
type modeProbe struct {
	Version int  `yaml:"version"`
	Mode    Mode `yaml:"mode"`
}

// FindModeRoot walks upward from start looking for a .codex-autorunner
// directory containing config.yml, matching §6's "nearest
// .codex-autorunner/config.yml walking upward from the current working
// directory". It returns the directory that contains .codex-autorunner
// (the repo or hub root) and the mode declared inside.
func FindModeRoot(start string) (root string, mode Mode, err error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", "", fmt.Errorf("%w: resolve start dir: %w", ErrConfigError, err)
	}

	for {
		candidate := filepath.Join(dir, ".codex-autorunner", "config.yml")
		data, err := os.ReadFile(candidate)
		if err == nil {
			var probe modeProbe
			if uerr := yaml.Unmarshal(data, &probe); uerr != nil {
				return "", "", fmt.Errorf("%w: parse %s: %w", ErrConfigError, candidate, uerr)
			}
			if probe.Mode != ModeRepo && probe.Mode != ModeHub {
				return "", "", fmt.Errorf("%w: %s: unrecognized mode %q", ErrConfigError, candidate, probe.Mode)
			}
			return dir, probe.Mode, nil
		}
		if !os.IsNotExist(err) {
			return "", "", fmt.Errorf("%w: read %s: %w", ErrConfigError, candidate, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", "", fmt.Errorf("%w: starting from %s", ErrNotFound, start)
		}
		dir = parent
	}
}

// RequireMode calls FindModeRoot and fails with ErrModeMismatch if the
// discovered mode isn't want — the "mismatched commands error with a
// clear message" behavior from §6.
func RequireMode(start string, want Mode) (root string, err error) {
	root, got, err := FindModeRoot(start)
	if err != nil {
		return "", err
	}
	if got != want {
		return "", fmt.Errorf("%w: %s is in %q mode, command requires %q", ErrModeMismatch, root, got, want)
	}
	return root, nil
}
