package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/codex-autorunner/car/destination"
)

// ErrConfigError wraps manifest load/save failures.
var ErrConfigError = errors.New("manifest: config error")

const fileVersion = 1

// FileName is the manifest's fixed on-disk name under a hub's state root.
const FileName = "manifest.yml"

// Kind discriminates a base repository from a secondary worktree checkout.
type Kind string

const (
	KindBase     Kind = "base"
	KindWorktree Kind = "worktree"
)

// RepoEntry is one managed repository, per spec §3 "Repo Entry". Its id is
// stable once written; every field below round-trips bit-identically
// through YAML (spec §8 "Round-trip laws").
type RepoEntry struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
	Kind Kind   `yaml:"kind,omitempty"`

	// BaseRepoID and Branch are set only when Kind is worktree.
	BaseRepoID string `yaml:"base_repo_id,omitempty"`
	Branch     string `yaml:"branch,omitempty"`

	Enabled bool `yaml:"enabled"`
	AutoRun bool `yaml:"auto_run"`

	Destination *destination.Destination `yaml:"destination,omitempty"`

	WorktreeSetupCommands []string `yaml:"worktree_setup_commands,omitempty"`

	// Missing is not persisted; it's computed by Reconcile against the
	// filesystem each time the manifest is loaded and reconciled.
	Missing bool `yaml:"-"`
}

// DisplayName is the directory basename, the default a newly discovered
// repo's display name falls back to.
func (e RepoEntry) DisplayName() string {
	return filepath.Base(e.Path)
}

// document is the literal on-disk shape of manifest.yml.
type document struct {
	Version int         `yaml:"version"`
	Repos   []RepoEntry `yaml:"repos"`
}

// Manifest is the loaded, mutable in-memory view of a hub's manifest.yml.
type Manifest struct {
	path  string
	Repos []RepoEntry
}

// Load reads path, or returns an empty version-1 Manifest if it doesn't
// exist yet (a brand new hub has no manifest until the first scan writes
// one).
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{path: path}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfigError, path, err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfigError, path, err)
	}
	return &Manifest{path: path, Repos: doc.Repos}, nil
}

// Save writes the manifest back to disk atomically (temp file + rename),
// matching the Managed Process Record write pattern used throughout this
// module.
func (m *Manifest) Save() error {
	doc := document{Version: fileVersion, Repos: m.Repos}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: marshal: %w", ErrConfigError, err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %w", ErrConfigError, dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*.yml.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrConfigError, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write temp file: %w", ErrConfigError, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %w", ErrConfigError, err)
	}
	if err := os.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("%w: rename into place: %w", ErrConfigError, err)
	}
	return nil
}

// Get returns the entry with the given id, or nil if not tracked.
func (m *Manifest) Get(id string) *RepoEntry {
	for i := range m.Repos {
		if m.Repos[i].ID == id {
			return &m.Repos[i]
		}
	}
	return nil
}

// Put inserts entry, or replaces the existing entry sharing its id.
func (m *Manifest) Put(entry RepoEntry) {
	for i := range m.Repos {
		if m.Repos[i].ID == entry.ID {
			m.Repos[i] = entry
			return
		}
	}
	m.Repos = append(m.Repos, entry)
}
