package hub

import (
	"context"
	"path/filepath"

	"github.com/robfig/cron/v3"

	"github.com/codex-autorunner/car/lock"
	"github.com/codex-autorunner/car/manifest"
)

// StartScheduler starts the periodic scan+GC job on h.cfg.ScanCron and
// returns a stop function. Safe to call at most once per Hub.
func (h *Hub) StartScheduler(ctx context.Context) (stop func(), err error) {
	c := cron.New()
	_, err = c.AddFunc(h.cfg.ScanCron, func() {
		if _, err := h.Scan(ctx); err != nil {
			h.logger.Error().Err(err).Msg("scheduled scan failed")
		}
		h.gcStaleLocks()
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return func() { <-c.Stop().Done() }, nil
}

// gcStaleLocks surfaces (but never itself releases) lock files whose owner
// PID is no longer alive. The hub refuses to auto-clear a lock, live or
// stale — a stale lock is only recovered through an explicit resume,
// which drives lock.Acquire's own recovery path and emits lock_recovered
// (spec §4.5 "Orchestration"). This sweep exists so an operator sees a
// wedged repo in logs instead of only discovering it on the next resume
// attempt.
func (h *Hub) gcStaleLocks() {
	h.mu.Lock()
	entries := append([]manifest.RepoEntry(nil), h.manifest.Repos...)
	h.mu.Unlock()

	for _, entry := range entries {
		if entry.Missing {
			continue
		}
		stateRoot, err := stateRootFor(entry)
		if err != nil {
			continue
		}
		lk := lock.New(filepath.Join(stateRoot, "lock"))
		status, owner, err := lk.Inspect()
		if err != nil || status != lock.LockedStale {
			continue
		}
		h.logger.Warn().Str("repo_id", entry.ID).Int32("stale_pid", owner.PID).
			Msg("stale lock detected, awaiting explicit resume to recover")
	}
}
