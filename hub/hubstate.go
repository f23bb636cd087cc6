package hub

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const hubStateFileName = "hub_state.json"

// hubStateDoc is the literal on-disk shape of hub_state.json (spec §6
// filesystem layout: "last scan + status snapshot").
type hubStateDoc struct {
	LastScanAt time.Time      `json:"last_scan_at"`
	Repos      []RepoSnapshot `json:"repos"`
}

// WriteHubState recomputes the status snapshot and persists it to
// hub_state.json, atomically. Callers that already have a fresh
// ListRepos result (e.g. after Scan) can call this directly; it's also
// safe to call standalone for an on-demand refresh.
func (h *Hub) WriteHubState(repos []RepoSnapshot) error {
	doc := hubStateDoc{LastScanAt: time.Now().UTC(), Repos: repos}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("hub: marshal hub_state.json: %w", err)
	}

	path := filepath.Join(h.stateRoot, hubStateFileName)
	tmp, err := os.CreateTemp(h.stateRoot, ".hub_state-*.json.tmp")
	if err != nil {
		return fmt.Errorf("hub: create temp hub_state.json: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("hub: write temp hub_state.json: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("hub: close temp hub_state.json: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("hub: rename hub_state.json into place: %w", err)
	}
	return nil
}
