package hub

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/codex-autorunner/car/manifest"
)

// StartManifestWatch watches manifest.yml for changes made outside this
// process (a second CLI invocation editing it directly, a human hand-
// editing it) and reloads the in-memory manifest snapshot so this Hub
// never serves a stale view. Returns a stop function; safe to call at
// most once per Hub.
func (h *Hub) StartManifestWatch(ctx context.Context) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hub: create manifest watcher: %w", err)
	}

	manifestPath := filepath.Join(h.stateRoot, manifest.FileName)
	if err := watcher.Add(filepath.Dir(manifestPath)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("hub: watch %s: %w", filepath.Dir(manifestPath), err)
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(manifestPath) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				h.reloadManifest()
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				h.logger.Warn().Err(werr).Msg("manifest watch error")
			}
		}
	}()

	return func() { close(done) }, nil
}

func (h *Hub) reloadManifest() {
	m, err := manifest.Load(filepath.Join(h.stateRoot, manifest.FileName))
	if err != nil {
		h.logger.Warn().Err(err).Msg("reload manifest after external change")
		return
	}
	h.mu.Lock()
	h.manifest = m
	h.mu.Unlock()
	h.logger.Info().Msg("manifest reloaded after external change")
}
