package hub

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/codex-autorunner/car/flowstore"
	"github.com/codex-autorunner/car/obslog"
)

const gitignoreContents = "*\n!/.gitignore\n"

// repoConfigSeed is the literal shape Initialization writes to
// config.yml; full defaults (agent_id, prompt caps, ...) come from the
// built-in defaults layer config.LoadRepo resolves against, so the seed
// itself stays minimal.
type repoConfigSeed struct {
	Mode    string `yaml:"mode"`
	Version int    `yaml:"version"`
}

var workspaceDocSeeds = map[string]string{
	"active_context.md": "# Active Context\n\nNothing in progress yet.\n",
	"decisions.md":       "# Decisions\n",
	"spec.md":            "# Spec\n",
}

// initRepo implements spec §4.5 "Initialization" for a repo not yet
// tracked. Idempotent: a repo whose config.yml already exists is left
// untouched.
func (h *Hub) initRepo(id string) error {
	entry := h.manifest.Get(id)
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, id)
	}

	stateRoot, err := stateRootFor(*entry)
	if err != nil {
		return err
	}
	if _, err := os.Stat(repoConfigPath(stateRoot)); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Join(stateRoot, "tickets"), 0o755); err != nil {
		return fmt.Errorf("hub: mkdir tickets for %s: %w", id, err)
	}
	contextspace := filepath.Join(stateRoot, "contextspace")
	if err := os.MkdirAll(contextspace, 0o755); err != nil {
		return fmt.Errorf("hub: mkdir contextspace for %s: %w", id, err)
	}

	if err := writeFileIfAbsent(filepath.Join(stateRoot, ".gitignore"), []byte(gitignoreContents)); err != nil {
		return fmt.Errorf("hub: write .gitignore for %s: %w", id, err)
	}

	for name, content := range workspaceDocSeeds {
		if err := writeFileIfAbsent(filepath.Join(contextspace, name), []byte(content)); err != nil {
			return fmt.Errorf("hub: seed %s for %s: %w", name, id, err)
		}
	}

	store, err := flowstore.Open(filepath.Join(stateRoot, flowstore.FileName))
	if err != nil {
		return fmt.Errorf("hub: create flow store for %s: %w", id, err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("hub: close freshly created flow store for %s: %w", id, err)
	}

	logPath := filepath.Join(stateRoot, obslog.RepoLogFilename)
	if err := touchFile(logPath); err != nil {
		return fmt.Errorf("hub: touch log file for %s: %w", id, err)
	}

	// config.yml is written last: its presence is what status/handle
	// treat as "this repo is initialized", so a crash mid-init leaves the
	// repo UNINITIALIZED rather than half-tracked.
	data, err := yaml.Marshal(repoConfigSeed{Mode: "repo", Version: 2})
	if err != nil {
		return fmt.Errorf("hub: marshal repo config seed for %s: %w", id, err)
	}
	if err := os.WriteFile(repoConfigPath(stateRoot), data, 0o644); err != nil {
		return fmt.Errorf("hub: write config.yml for %s: %w", id, err)
	}
	return nil
}

func writeFileIfAbsent(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, 0o644)
}

func touchFile(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
