package hub

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Scan implements spec §4.5 "Discovery": reconcile the manifest against
// ReposRoot, persist it, and — when auto_init_missing is set — initialize
// every newly discovered repo. Returns the ids discovered by this call
// (whether or not auto-init ran), and any per-repo init failures
// aggregated via go-multierror so one bad repo never hides the others.
// Finishes by refreshing hub_state.json with the post-scan status
// snapshot, best-effort.
func (h *Hub) Scan(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	discovered, err := h.manifest.Reconcile(h.ReposRoot)
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("hub: reconcile manifest: %w", err)
	}

	h.mu.Lock()
	saveErr := h.manifest.Save()
	h.mu.Unlock()
	if saveErr != nil {
		return discovered, fmt.Errorf("hub: save manifest: %w", saveErr)
	}

	var result *multierror.Error
	if h.cfg.AutoInitMissing {
		for _, id := range discovered {
			if err := h.initRepo(id); err != nil {
				result = multierror.Append(result, fmt.Errorf("init %s: %w", id, err))
				h.logger.Error().Err(err).Str("repo_id", id).Msg("auto-init failed")
				continue
			}
			h.logger.Info().Str("repo_id", id).Msg("repo discovered and initialized")
		}
	}

	if err := h.WriteHubState(h.ListRepos(ctx)); err != nil {
		h.logger.Warn().Err(err).Msg("write hub_state.json after scan")
	}
	return discovered, result.ErrorOrNil()
}
