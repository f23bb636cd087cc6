package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoadRepo_DefaultsOnly(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadRepo(root)
	if err != nil {
		t.Fatalf("LoadRepo() error = %v", err)
	}
	if cfg.AgentID != "codex" {
		t.Errorf("AgentID = %q, want codex (default)", cfg.AgentID)
	}
	if cfg.PromptTailLines != 200 {
		t.Errorf("PromptTailLines = %d, want 200 (default)", cfg.PromptTailLines)
	}
}

func TestLoadRepo_CommittedOverridesDefaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "codex-autorunner.yml"), "agent_id: claude\n")

	cfg, err := LoadRepo(root)
	if err != nil {
		t.Fatalf("LoadRepo() error = %v", err)
	}
	if cfg.AgentID != "claude" {
		t.Errorf("AgentID = %q, want claude (from committed file)", cfg.AgentID)
	}
}

func TestLoadRepo_OverrideBeatsCommitted(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "codex-autorunner.yml"), "agent_id: claude\n")
	writeFile(t, filepath.Join(root, "codex-autorunner.override.yml"), "agent_id: opencode\n")

	cfg, err := LoadRepo(root)
	if err != nil {
		t.Fatalf("LoadRepo() error = %v", err)
	}
	if cfg.AgentID != "opencode" {
		t.Errorf("AgentID = %q, want opencode (override beats committed)", cfg.AgentID)
	}
}

func TestLoadRepo_LocalConfigBeatsOverride(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "codex-autorunner.yml"), "agent_id: claude\n")
	writeFile(t, filepath.Join(root, "codex-autorunner.override.yml"), "agent_id: opencode\n")
	writeFile(t, filepath.Join(root, ".codex-autorunner", "config.yml"), "version: 2\nmode: repo\nagent_id: codex\n")

	cfg, err := LoadRepo(root)
	if err != nil {
		t.Fatalf("LoadRepo() error = %v", err)
	}
	if cfg.AgentID != "codex" {
		t.Errorf("AgentID = %q, want codex (local config beats override)", cfg.AgentID)
	}
}

func TestLoadRepo_EnvVarBeatsAllFileLayers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".codex-autorunner", "config.yml"), "version: 2\nmode: repo\nagent_id: codex\n")
	t.Setenv("CAR_AGENT_ID", "claude")

	cfg, err := LoadRepo(root)
	if err != nil {
		t.Fatalf("LoadRepo() error = %v", err)
	}
	if cfg.AgentID != "claude" {
		t.Errorf("AgentID = %q, want claude (env beats every file layer)", cfg.AgentID)
	}
}

func TestLoadHub_DefaultsOnly(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadHub(root)
	if err != nil {
		t.Fatalf("LoadHub() error = %v", err)
	}
	if !cfg.AutoInitMissing {
		t.Errorf("AutoInitMissing = false, want true (default)")
	}
	if cfg.ScanCron != "@every 5m" {
		t.Errorf("ScanCron = %q, want @every 5m (default)", cfg.ScanCron)
	}
}

func TestLoadHub_LocalConfigOverridesReposRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".codex-autorunner", "config.yml"), "version: 2\nmode: hub\nrepos_root: /srv/repos\n")

	cfg, err := LoadHub(root)
	if err != nil {
		t.Fatalf("LoadHub() error = %v", err)
	}
	if cfg.ReposRoot != "/srv/repos" {
		t.Errorf("ReposRoot = %q, want /srv/repos", cfg.ReposRoot)
	}
}

func TestFindModeRoot_WalksUpward(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".codex-autorunner", "config.yml"), "version: 2\nmode: repo\n")
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	foundRoot, mode, err := FindModeRoot(nested)
	if err != nil {
		t.Fatalf("FindModeRoot() error = %v", err)
	}
	if foundRoot != root {
		t.Errorf("root = %q, want %q", foundRoot, root)
	}
	if mode != ModeRepo {
		t.Errorf("mode = %q, want repo", mode)
	}
}

func TestFindModeRoot_NotFound(t *testing.T) {
	root := t.TempDir()
	if _, _, err := FindModeRoot(root); err == nil {
		t.Fatal("FindModeRoot() error = nil, want ErrNotFound")
	}
}

func TestRequireMode_MismatchErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".codex-autorunner", "config.yml"), "version: 2\nmode: hub\n")

	if _, err := RequireMode(root, ModeRepo); err == nil {
		t.Fatal("RequireMode() error = nil, want ErrModeMismatch")
	}
}

func TestRequireMode_MatchSucceeds(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".codex-autorunner", "config.yml"), "version: 2\nmode: repo\n")

	got, err := RequireMode(root, ModeRepo)
	if err != nil {
		t.Fatalf("RequireMode() error = %v", err)
	}
	if got != root {
		t.Errorf("root = %q, want %q", got, root)
	}
}
