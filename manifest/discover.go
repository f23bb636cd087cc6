package manifest

import (
	"os"
	"path/filepath"
)

// Reconcile implements spec §4.5 "Discovery": enumerate the immediate
// children of reposRoot (depth fixed at 1); each directory containing a
// .git file or directory is a repo candidate. Manifest entries whose
// directory no longer exists are marked missing, not removed. Newly
// discovered directories are added with enabled=true, auto_run=false.
//
// Reconcile mutates m.Repos in place and returns the ids of repos
// discovered for the first time by this call, so the caller can decide
// whether to initialize them (per auto_init_missing).
func (m *Manifest) Reconcile(reposRoot string) (discoveredIDs []string, err error) {
	candidates, err := discoverCandidates(reposRoot)
	if err != nil {
		return nil, err
	}

	onDisk := make(map[string]bool, len(candidates))
	for _, dir := range candidates {
		onDisk[dir] = true
	}

	for i := range m.Repos {
		m.Repos[i].Missing = !onDisk[m.Repos[i].Path]
	}

	tracked := make(map[string]bool, len(m.Repos))
	for _, e := range m.Repos {
		tracked[e.Path] = true
	}

	for _, dir := range candidates {
		if tracked[dir] {
			continue
		}
		id := filepath.Base(dir)
		m.Put(RepoEntry{
			ID:      id,
			Path:    dir,
			Kind:    KindBase,
			Enabled: true,
			AutoRun: false,
		})
		discoveredIDs = append(discoveredIDs, id)
	}
	return discoveredIDs, nil
}

// discoverCandidates lists reposRoot's immediate children that contain a
// .git file or directory, returning their absolute paths.
func discoverCandidates(reposRoot string) ([]string, error) {
	entries, err := os.ReadDir(reposRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(reposRoot, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
			continue
		}
		out = append(out, dir)
	}
	return out, nil
}
