package stateroot

import (
	"fmt"
	"os"
	"path/filepath"
)

// StateDirName is the directory name every state root is rooted at.
const StateDirName = ".codex-autorunner"

// GlobalStateRootEnv overrides the global state root when set.
const GlobalStateRootEnv = "CAR_GLOBAL_STATE_ROOT"

// RepoStateRoot returns the canonical per-repo state directory:
// <repo_root>/.codex-autorunner. repoRoot must be an absolute, existing
// directory.
func RepoStateRoot(repoRoot string) (string, error) {
	if !filepath.IsAbs(repoRoot) {
		return "", fmt.Errorf("%w: repo root %q is not absolute", ErrConfigError, repoRoot)
	}
	info, err := os.Stat(repoRoot)
	if err != nil {
		return "", fmt.Errorf("%w: repo root %q: %v", ErrConfigError, repoRoot, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: repo root %q is not a directory", ErrConfigError, repoRoot)
	}
	return filepath.Join(repoRoot, StateDirName), nil
}

// GlobalStateRoot resolves the user-global state directory. Precedence:
// explicit override argument, then CAR_GLOBAL_STATE_ROOT, then
// $HOME/.codex-autorunner. An empty override is ignored, not treated as
// "use the empty string".
func GlobalStateRoot(override string) (string, error) {
	if override != "" {
		if !filepath.IsAbs(override) {
			return "", fmt.Errorf("%w: global state root override %q is not absolute", ErrConfigError, override)
		}
		return override, nil
	}
	if env := os.Getenv(GlobalStateRootEnv); env != "" {
		if !filepath.IsAbs(env) {
			return "", fmt.Errorf("%w: %s=%q is not absolute", ErrConfigError, GlobalStateRootEnv, env)
		}
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("%w: resolving home directory: %v", ErrConfigError, err)
	}
	return filepath.Join(home, StateDirName), nil
}

// HubTemplatesRoot returns the directory hub-level ticket/prompt templates
// are read from: <hub_root>/.codex-autorunner/templates.
func HubTemplatesRoot(hubRoot string) (string, error) {
	if !filepath.IsAbs(hubRoot) {
		return "", fmt.Errorf("%w: hub root %q is not absolute", ErrConfigError, hubRoot)
	}
	return filepath.Join(hubRoot, StateDirName, "templates"), nil
}

// AppServerWorkspaceRoot returns the root under which a docker-destination
// backend's app-server workspaces are created. When the effective
// destination is docker, the repo mount is the only writable path inside
// the container, so this is forced under the repo's own state root rather
// than the global root.
func AppServerWorkspaceRoot(repoRoot string) (string, error) {
	repoState, err := RepoStateRoot(repoRoot)
	if err != nil {
		return "", err
	}
	return filepath.Join(repoState, "app_server_workspaces"), nil
}

// CheckNoCollision fails if any two of the given named roots resolve to the
// same or a nested path, which would let two independently-owned state
// trees corrupt each other.
func CheckNoCollision(roots map[string]string) error {
	type entry struct {
		name string
		path string
	}
	entries := make([]entry, 0, len(roots))
	for name, path := range roots {
		clean, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("%w: resolving %s=%q: %v", ErrConfigError, name, path, err)
		}
		entries = append(entries, entry{name: name, path: clean})
	}
	for i := range entries {
		for j := range entries {
			if i == j {
				continue
			}
			if entries[i].path == entries[j].path {
				return fmt.Errorf("%w: %s and %s both resolve to %q", ErrConfigError, entries[i].name, entries[j].name, entries[i].path)
			}
			rel, err := filepath.Rel(entries[i].path, entries[j].path)
			if err == nil && rel != "." && !filepath.IsAbs(rel) && rel[0] != '.' {
				return fmt.Errorf("%w: %s (%q) is nested inside %s (%q)", ErrConfigError, entries[j].name, entries[j].path, entries[i].name, entries[i].path)
			}
		}
	}
	return nil
}
