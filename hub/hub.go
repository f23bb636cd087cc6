package hub

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/codex-autorunner/car/backend"
	"github.com/codex-autorunner/car/backend/cli/claude"
	"github.com/codex-autorunner/car/backend/cli/codex"
	"github.com/codex-autorunner/car/backend/cli/opencode"
	"github.com/codex-autorunner/car/config"
	"github.com/codex-autorunner/car/engine"
	"github.com/codex-autorunner/car/flowstore"
	"github.com/codex-autorunner/car/lock"
	"github.com/codex-autorunner/car/manifest"
	"github.com/codex-autorunner/car/obslog"
	"github.com/codex-autorunner/car/orchestrator"
	"github.com/codex-autorunner/car/stateroot"
)

// Hub coordinates many Engines, one per managed repo (spec §4.5 "Hub
// Supervisor"). It holds the shared Orchestrator every repo's Engine uses,
// the hub's own manifest and lock, and a lazily-populated cache of
// per-repo Engine + Flow Store pairs.
type Hub struct {
	HubRoot   string
	ReposRoot string

	stateRoot string
	cfg       config.HubConfig
	manifest  *manifest.Manifest
	lk        *lock.Lock
	orch      *orchestrator.Orchestrator
	logger    zerolog.Logger

	mu    sync.Mutex
	repos map[string]*repoHandle
}

// repoHandle bundles one repo's in-process Engine and Flow Store, guarded
// by its own mutex so hub-level operations on different repos never block
// each other (spec §4.5 "Orchestration": serialized per repo id, parallel
// across repos).
type repoHandle struct {
	mu    sync.Mutex
	eng   *engine.Engine
	store *flowstore.Store
}

// Open resolves hubRoot's config and manifest, acquires the hub lock, and
// returns a ready Hub. A second Open against the same hubRoot while the
// first is still alive fails with ErrHubLockedAlive (spec §4.5
// "Cross-hub").
func Open(hubRoot string) (*Hub, error) {
	abs, err := filepath.Abs(hubRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve hub root %q: %v", ErrConfigError, hubRoot, err)
	}

	stateRoot, err := stateroot.RepoStateRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigError, err)
	}

	cfg, err := config.LoadHub(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: load hub config: %v", ErrConfigError, err)
	}

	reposRoot := cfg.ReposRoot
	if reposRoot == "" {
		reposRoot = abs
	} else if !filepath.IsAbs(reposRoot) {
		reposRoot = filepath.Join(abs, reposRoot)
	}

	m, err := manifest.Load(filepath.Join(stateRoot, manifest.FileName))
	if err != nil {
		return nil, err
	}

	lk := lock.New(filepath.Join(stateRoot, "lock"))
	if _, err := lk.Acquire(); err != nil {
		if errors.Is(err, lock.ErrLockedAlive) {
			return nil, ErrHubLockedAlive
		}
		return nil, fmt.Errorf("hub: acquire hub lock: %w", err)
	}

	logger, err := obslog.NewHubLogger("hub", stateRoot)
	if err != nil {
		lk.Release()
		return nil, fmt.Errorf("hub: open hub logger: %w", err)
	}

	registry := orchestrator.NewRegistry(stateRoot, "hub")
	orch := orchestrator.New(registry)
	registerDefaultBackends(orch)

	return &Hub{
		HubRoot:   abs,
		ReposRoot: reposRoot,
		stateRoot: stateRoot,
		cfg:       cfg,
		manifest:  m,
		lk:        lk,
		orch:      orch,
		logger:    logger,
		repos:     make(map[string]*repoHandle),
	}, nil
}

// registerDefaultBackends wires the three CLI backends every hub process
// can select via a repo's agent_id. ACP agents are not auto-registered
// here since their binary/name is per-agent configuration, not a fixed
// agent_id the hub knows in advance.
func registerDefaultBackends(orch *orchestrator.Orchestrator) {
	orch.RegisterBackend("codex", func() backend.Engine { return codex.New() })
	orch.RegisterBackend("claude", func() backend.Engine { return claude.New() })
	orch.RegisterBackend("opencode", func() backend.Engine { return opencode.New() })
}

// Close releases the hub lock and every open per-repo Flow Store. Safe to
// call once, at process shutdown.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, rh := range h.repos {
		if rh.store != nil {
			if err := rh.store.Close(); err != nil {
				h.logger.Warn().Err(err).Str("repo_id", id).Msg("close repo flow store")
			}
		}
	}
	return h.lk.Release()
}

// stateRootFor resolves a repo entry's state root, creating nothing.
func stateRootFor(entry manifest.RepoEntry) (string, error) {
	root, err := stateroot.RepoStateRoot(entry.Path)
	if err != nil {
		return "", fmt.Errorf("%w: repo %s: %v", ErrConfigError, entry.ID, err)
	}
	return root, nil
}

// repoConfigPath is the fixed location Initialization writes to and
// status checks probe for "is this repo tracked yet".
func repoConfigPath(stateRoot string) string {
	return filepath.Join(stateRoot, "config.yml")
}

// handle returns (creating if needed) the cached repoHandle for id,
// opening its Flow Store and constructing its Engine on first use. The
// caller must hold rh.mu before touching rh.eng/rh.store for any
// mutating operation.
func (h *Hub) handle(id string) (*repoHandle, error) {
	h.mu.Lock()
	rh, ok := h.repos[id]
	if ok {
		h.mu.Unlock()
		return rh, nil
	}
	h.mu.Unlock()

	entry := h.manifest.Get(id)
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, id)
	}

	stateRoot, err := stateRootFor(*entry)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(repoConfigPath(stateRoot)); err != nil {
		return nil, fmt.Errorf("%w: repo %s is not initialized", ErrConfigError, id)
	}

	cfg, err := config.LoadRepo(entry.Path)
	if err != nil {
		return nil, fmt.Errorf("hub: load repo config for %s: %w", id, err)
	}
	if entry.Destination != nil {
		cfg.Destination = *entry.Destination
	}

	store, err := flowstore.Open(filepath.Join(stateRoot, "flows.db"))
	if err != nil {
		return nil, fmt.Errorf("hub: open flow store for %s: %w", id, err)
	}

	eng, err := engine.New(entry.Path, id, cfg, store, h.orch, h.logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("hub: construct engine for %s: %w", id, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.repos[id]; ok {
		// lost the race: another caller built it first, discard ours.
		store.Close()
		return existing, nil
	}
	rh = &repoHandle{eng: eng, store: store}
	h.repos[id] = rh
	return rh, nil
}
