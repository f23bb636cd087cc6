package hub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/codex-autorunner/car/engine"
	"github.com/codex-autorunner/car/flowstore"
	"github.com/codex-autorunner/car/lock"
	"github.com/codex-autorunner/car/manifest"
)

// RepoSnapshot is one row of hub.list_repos' status snapshot (spec §4.5
// "Per-repo status model").
type RepoSnapshot struct {
	ID          string
	Path        string
	Kind        manifest.Kind
	Enabled     bool
	AutoRun     bool
	Status      Status
	LockStatus  lock.Status
	ActiveRunID string
	Err         string
}

// ListRepos computes a status snapshot for every manifest entry.
// Computation is independent per repo, so it fans out across goroutines —
// one slow or wedged repo never blocks the others' rows.
func (h *Hub) ListRepos(ctx context.Context) []RepoSnapshot {
	h.mu.Lock()
	entries := append([]manifest.RepoEntry(nil), h.manifest.Repos...)
	h.mu.Unlock()

	out := make([]RepoSnapshot, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry manifest.RepoEntry) {
			defer wg.Done()
			out[i] = h.snapshot(ctx, entry)
		}(i, entry)
	}
	wg.Wait()
	return out
}

func (h *Hub) snapshot(ctx context.Context, entry manifest.RepoEntry) RepoSnapshot {
	snap := RepoSnapshot{
		ID:      entry.ID,
		Path:    entry.Path,
		Kind:    entry.Kind,
		Enabled: entry.Enabled,
		AutoRun: entry.AutoRun,
	}

	if entry.Missing {
		snap.Status = StatusMissing
		return snap
	}

	stateRoot, err := stateRootFor(entry)
	if err != nil {
		snap.Status = StatusError
		snap.Err = err.Error()
		return snap
	}
	if _, err := os.Stat(repoConfigPath(stateRoot)); err != nil {
		snap.Status = StatusUninitialized
		return snap
	}

	lstatus, _, err := lock.New(filepath.Join(stateRoot, "lock")).Inspect()
	if err != nil {
		snap.Status = StatusError
		snap.Err = err.Error()
		return snap
	}
	snap.LockStatus = lstatus

	run, err := h.activeRun(ctx, entry.ID)
	if err != nil {
		if lstatus == lock.LockedAlive {
			// the lock is live but we can't read the run it belongs to
			// (store error, mid-turn write) — status isn't derivable.
			snap.Status = StatusLocked
			return snap
		}
		snap.Status = StatusError
		snap.Err = err.Error()
		return snap
	}
	if run != nil {
		snap.ActiveRunID = run.ID
	}

	switch {
	case lstatus == lock.LockedAlive:
		snap.Status = StatusRunning
	case run == nil:
		snap.Status = StatusIdle
	case run.Status == flowstore.StatusPaused:
		snap.Status = StatusPaused
	default:
		snap.Status = StatusIdle
	}
	return snap
}

// activeRun returns the single pending|running|paused Flow Run for id, or
// nil if none — mirroring engine.Engine's own lookup, exposed here so
// status computation doesn't need to go through a full Engine operation.
func (h *Hub) activeRun(ctx context.Context, id string) (*flowstore.FlowRun, error) {
	rh, err := h.handle(id)
	if err != nil {
		return nil, err
	}
	rh.mu.Lock()
	defer rh.mu.Unlock()
	for _, status := range []flowstore.Status{flowstore.StatusRunning, flowstore.StatusPaused, flowstore.StatusPending} {
		runs, err := rh.store.ListRuns(ctx, flowstore.ListFilter{FlowType: engine.FlowType, Status: status, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("hub: list active runs for %s: %w", id, err)
		}
		if len(runs) > 0 {
			r := runs[0]
			return &r, nil
		}
	}
	return nil, nil
}
