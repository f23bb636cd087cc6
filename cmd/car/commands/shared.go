package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/codex-autorunner/car/backend"
	"github.com/codex-autorunner/car/backend/cli/claude"
	"github.com/codex-autorunner/car/backend/cli/codex"
	"github.com/codex-autorunner/car/backend/cli/opencode"
	"github.com/codex-autorunner/car/config"
	"github.com/codex-autorunner/car/engine"
	"github.com/codex-autorunner/car/flowstore"
	"github.com/codex-autorunner/car/obslog"
	"github.com/codex-autorunner/car/orchestrator"
	"github.com/codex-autorunner/car/stateroot"
)

// repoSession bundles one invocation's Engine and its Flow Store, so every
// command can close the store on the way out regardless of how it returns.
type repoSession struct {
	eng   *engine.Engine
	store *flowstore.Store
}

func (s *repoSession) Close() error {
	return s.store.Close()
}

// openRepoSession resolves the nearest repo-mode root from the current
// working directory and constructs its Engine, mirroring
// hub.Hub.handle's per-repo wiring for the single-repo case.
func openRepoSession() (*repoSession, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("car: resolve working directory: %w", err)
	}

	root, err := config.RequireMode(cwd, config.ModeRepo)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadRepo(root)
	if err != nil {
		return nil, err
	}

	stateRoot, err := stateroot.RepoStateRoot(root)
	if err != nil {
		return nil, err
	}

	store, err := flowstore.Open(filepath.Join(stateRoot, flowstore.FileName))
	if err != nil {
		return nil, fmt.Errorf("car: open flow store: %w", err)
	}

	logger, err := obslog.NewRepoLogger("car", stateRoot)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("car: open logger: %w", err)
	}

	registry := orchestrator.NewRegistry(stateRoot, "repo")
	orch := orchestrator.New(registry)
	orch.RegisterBackend("codex", func() backend.Engine { return codex.New() })
	orch.RegisterBackend("claude", func() backend.Engine { return claude.New() })
	orch.RegisterBackend("opencode", func() backend.Engine { return opencode.New() })

	repoID := filepath.Base(root)
	eng, err := engine.New(root, repoID, cfg, store, orch, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("car: construct engine: %w", err)
	}

	return &repoSession{eng: eng, store: store}, nil
}
