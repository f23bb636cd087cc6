package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codex-autorunner/car/destination"
)

func TestLoad_MissingFileReturnsEmptyManifest(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m.Repos) != 0 {
		t.Errorf("Repos = %v, want empty", m.Repos)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	m := &Manifest{path: path}
	m.Put(RepoEntry{
		ID:          "widgets",
		Path:        "/repos/widgets",
		Kind:        KindBase,
		Enabled:     true,
		AutoRun:     true,
		Destination: &destination.Destination{Kind: destination.Local},
	})

	if err := m.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(loaded.Repos) != 1 {
		t.Fatalf("Repos = %v, want 1 entry", loaded.Repos)
	}
	got := loaded.Repos[0]
	if got.ID != "widgets" || got.Path != "/repos/widgets" || !got.Enabled || !got.AutoRun {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Destination == nil || got.Destination.Kind != destination.Local {
		t.Errorf("Destination = %+v, want local", got.Destination)
	}
}

func TestPut_ReplacesExistingID(t *testing.T) {
	m := &Manifest{}
	m.Put(RepoEntry{ID: "a", Path: "/repos/a"})
	m.Put(RepoEntry{ID: "a", Path: "/repos/a", Enabled: true})

	if len(m.Repos) != 1 {
		t.Fatalf("Repos = %v, want 1 entry", m.Repos)
	}
	if !m.Repos[0].Enabled {
		t.Errorf("Put() did not replace existing entry")
	}
}

func TestGet_UnknownReturnsNil(t *testing.T) {
	m := &Manifest{}
	if e := m.Get("nope"); e != nil {
		t.Errorf("Get() = %+v, want nil", e)
	}
}

func mkRepo(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Join(dir, ".git"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	return dir
}

func TestReconcile_DiscoversNewRepos(t *testing.T) {
	root := t.TempDir()
	mkRepo(t, root, "alpha")
	mkRepo(t, root, "beta")

	m := &Manifest{}
	discovered, err := m.Reconcile(root)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(discovered) != 2 {
		t.Fatalf("discovered = %v, want 2 new ids", discovered)
	}
	if len(m.Repos) != 2 {
		t.Fatalf("Repos = %v, want 2 entries", m.Repos)
	}
	for _, e := range m.Repos {
		if !e.Enabled || e.AutoRun {
			t.Errorf("new entry %+v should be enabled=true, auto_run=false", e)
		}
	}
}

func TestReconcile_MarksMissingWithoutRemoving(t *testing.T) {
	root := t.TempDir()
	gone := filepath.Join(root, "gone")

	m := &Manifest{}
	m.Put(RepoEntry{ID: "gone", Path: gone, Enabled: true})

	if _, err := m.Reconcile(root); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(m.Repos) != 1 {
		t.Fatalf("Repos = %v, want entry retained", m.Repos)
	}
	if !m.Repos[0].Missing {
		t.Errorf("Missing = false, want true for a repo removed from disk")
	}
}

func TestReconcile_IgnoresDirsWithoutGit(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "not-a-repo"), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	m := &Manifest{}
	discovered, err := m.Reconcile(root)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(discovered) != 0 {
		t.Errorf("discovered = %v, want none", discovered)
	}
}

func TestReconcile_SkipsAlreadyTrackedRepos(t *testing.T) {
	root := t.TempDir()
	dir := mkRepo(t, root, "alpha")

	m := &Manifest{}
	m.Put(RepoEntry{ID: "alpha", Path: dir, Enabled: true, AutoRun: true})

	discovered, err := m.Reconcile(root)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(discovered) != 0 {
		t.Errorf("discovered = %v, want none (already tracked)", discovered)
	}
	if !m.Repos[0].AutoRun {
		t.Errorf("Reconcile() must not clobber existing fields for tracked repos")
	}
}
