package hub

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/codex-autorunner/car/engine"
	"github.com/codex-autorunner/car/manifest"
)

// Start implements hub.start(repo_id, {force_new}) (spec §6). It serializes
// against any other hub-level operation on the same repo id via the
// repoHandle's own mutex, but never blocks operations on other repos.
func (h *Hub) Start(ctx context.Context, repoID string, forceNew bool) (runID, hint string, err error) {
	if err := h.checkEnabled(repoID); err != nil {
		return "", "", err
	}
	rh, err := h.handle(repoID)
	if err != nil {
		return "", "", err
	}
	rh.mu.Lock()
	defer rh.mu.Unlock()

	runID, hint, err = rh.eng.Start(ctx, forceNew)
	if err != nil {
		return "", "", err
	}
	if hint == engine.HintActiveRunReused {
		// a Step loop for this run is already in flight (or already
		// finished); driving another would just collide on the repo
		// lock and log a spurious error.
		return runID, hint, nil
	}
	go func() {
		rh.mu.Lock()
		defer rh.mu.Unlock()
		if stepErr := rh.eng.Step(ctx, runID); stepErr != nil {
			h.logger.Error().Err(stepErr).Str("repo_id", repoID).Str("run_id", runID).Msg("flow step failed")
		}
	}()
	return runID, hint, nil
}

// Stop implements hub.stop(repo_id, run_id).
func (h *Hub) Stop(ctx context.Context, repoID, runID string) error {
	rh, err := h.handle(repoID)
	if err != nil {
		return err
	}
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return rh.eng.Stop(ctx, runID)
}

// Resume implements hub.resume(repo_id, run_id).
func (h *Hub) Resume(ctx context.Context, repoID, runID string) error {
	if err := h.checkEnabled(repoID); err != nil {
		return err
	}
	rh, err := h.handle(repoID)
	if err != nil {
		return err
	}
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return rh.eng.Resume(ctx, runID)
}

func (h *Hub) checkEnabled(repoID string) error {
	h.mu.Lock()
	entry := h.manifest.Get(repoID)
	h.mu.Unlock()
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, repoID)
	}
	if !entry.Enabled {
		return fmt.Errorf("%w: %s", ErrRepoDisabled, repoID)
	}
	return nil
}

// StartResult is one repo's outcome from a fan-out start.
type StartResult struct {
	RepoID string
	RunID  string
	Hint   string
	Err    error
}

// StartAutoRun starts every enabled, auto_run repo in parallel (spec §4.5
// "Orchestration": hub-level operations serialized per repo id but run in
// parallel across repos). Per-repo failures are aggregated, never silently
// dropped, via go-multierror.
func (h *Hub) StartAutoRun(ctx context.Context) ([]StartResult, error) {
	h.mu.Lock()
	entries := append([]manifest.RepoEntry(nil), h.manifest.Repos...)
	h.mu.Unlock()

	var candidates []manifest.RepoEntry
	for _, e := range entries {
		if e.Enabled && e.AutoRun && !e.Missing {
			candidates = append(candidates, e)
		}
	}

	results := make([]StartResult, len(candidates))
	var wg sync.WaitGroup
	for i, entry := range candidates {
		wg.Add(1)
		go func(i int, entry manifest.RepoEntry) {
			defer wg.Done()
			runID, hint, err := h.Start(ctx, entry.ID, false)
			results[i] = StartResult{RepoID: entry.ID, RunID: runID, Hint: hint, Err: err}
		}(i, entry)
	}
	wg.Wait()

	var agg *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			agg = multierror.Append(agg, fmt.Errorf("start %s: %w", r.RepoID, r.Err))
		}
	}
	return results, agg.ErrorOrNil()
}
