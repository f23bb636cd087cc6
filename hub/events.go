package hub

import (
	"context"

	"github.com/codex-autorunner/car/flowstore"
)

// Events implements run.events(run_id, after_seq?) for a repo managed by
// this hub (spec §6).
func (h *Hub) Events(ctx context.Context, repoID, runID string, afterSeq int64) ([]flowstore.FlowEvent, error) {
	rh, err := h.handle(repoID)
	if err != nil {
		return nil, err
	}
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return rh.store.GetEvents(ctx, runID, flowstore.GetEventFilter{AfterSeq: afterSeq})
}
