package hub

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/codex-autorunner/car/manifest"
)

// WorktreeCreate implements hub.worktree.create (spec §6, §4.5): adds a
// git worktree for baseRepoID at branch, registers it in the manifest as a
// worktree Repo Entry, initializes its state root, then runs
// setupCommands sequentially with output captured into the new worktree's
// own codex-autorunner.log (SPEC_FULL.md §C "Worktree post-creation
// commands").
func (h *Hub) WorktreeCreate(ctx context.Context, baseRepoID, branch string, setupCommands []string) (*manifest.RepoEntry, error) {
	h.mu.Lock()
	base := h.manifest.Get(baseRepoID)
	h.mu.Unlock()
	if base == nil {
		return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, baseRepoID)
	}
	if base.Kind == manifest.KindWorktree {
		return nil, fmt.Errorf("%w: %s is itself a worktree, worktrees nest on their base repo only", ErrConfigError, baseRepoID)
	}

	worktreePath := filepath.Join(filepath.Dir(base.Path), fmt.Sprintf("%s--%s", baseRepoID, sanitizeBranch(branch)))
	if _, err := os.Stat(worktreePath); err == nil {
		return nil, fmt.Errorf("%w: worktree path %s already exists", ErrConfigError, worktreePath)
	}

	cmd := exec.CommandContext(ctx, "git", "worktree", "add", worktreePath, branch)
	cmd.Dir = base.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("hub: git worktree add %s %s: %w: %s", worktreePath, branch, err, out)
	}

	id := fmt.Sprintf("%s--%s", baseRepoID, sanitizeBranch(branch))
	entry := manifest.RepoEntry{
		ID:                    id,
		Path:                  worktreePath,
		Kind:                  manifest.KindWorktree,
		BaseRepoID:            baseRepoID,
		Branch:                branch,
		Enabled:               true,
		AutoRun:               false,
		Destination:           base.Destination,
		WorktreeSetupCommands: setupCommands,
	}

	h.mu.Lock()
	h.manifest.Put(entry)
	saveErr := h.manifest.Save()
	h.mu.Unlock()
	if saveErr != nil {
		return nil, fmt.Errorf("hub: save manifest after worktree create: %w", saveErr)
	}

	if err := h.initRepo(id); err != nil {
		return &entry, fmt.Errorf("hub: initialize worktree %s: %w", id, err)
	}

	if err := h.runSetupCommands(ctx, entry); err != nil {
		return &entry, err
	}
	return &entry, nil
}

// runSetupCommands executes entry.WorktreeSetupCommands sequentially in
// the worktree's own directory, mirroring combined output into the
// worktree's codex-autorunner.log rather than the hub's.
func (h *Hub) runSetupCommands(ctx context.Context, entry manifest.RepoEntry) error {
	if len(entry.WorktreeSetupCommands) == 0 {
		return nil
	}
	stateRoot, err := stateRootFor(entry)
	if err != nil {
		return err
	}
	logPath := filepath.Join(stateRoot, "codex-autorunner.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("hub: open worktree log %s: %w", logPath, err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	for _, shellCmd := range entry.WorktreeSetupCommands {
		fmt.Fprintf(w, "+ %s\n", shellCmd)
		cmd := exec.CommandContext(ctx, "sh", "-c", shellCmd)
		cmd.Dir = entry.Path
		cmd.Stdout = w
		cmd.Stderr = w
		if err := cmd.Run(); err != nil {
			fmt.Fprintf(w, "! %s failed: %v\n", shellCmd, err)
			w.Flush()
			return fmt.Errorf("hub: worktree setup command %q failed: %w", shellCmd, err)
		}
	}
	return nil
}

// WorktreeCleanup implements hub.worktree.cleanup: removes the git
// worktree and its manifest entry. The base repo is untouched.
func (h *Hub) WorktreeCleanup(ctx context.Context, worktreeID string) error {
	h.mu.Lock()
	entry := h.manifest.Get(worktreeID)
	h.mu.Unlock()
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrRepoNotFound, worktreeID)
	}
	if entry.Kind != manifest.KindWorktree {
		return fmt.Errorf("%w: %s is not a worktree", ErrConfigError, worktreeID)
	}

	h.mu.Lock()
	base := h.manifest.Get(entry.BaseRepoID)
	h.mu.Unlock()
	if base == nil {
		return fmt.Errorf("%w: base repo %s for worktree %s", ErrRepoNotFound, entry.BaseRepoID, worktreeID)
	}

	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", entry.Path, "--force")
	cmd.Dir = base.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("hub: git worktree remove %s: %w: %s", entry.Path, err, out)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	filtered := make([]manifest.RepoEntry, 0, len(h.manifest.Repos))
	for _, e := range h.manifest.Repos {
		if e.ID != worktreeID {
			filtered = append(filtered, e)
		}
	}
	h.manifest.Repos = filtered
	if rh, ok := h.repos[worktreeID]; ok {
		if rh.store != nil {
			rh.store.Close()
		}
		delete(h.repos, worktreeID)
	}
	return h.manifest.Save()
}

func sanitizeBranch(branch string) string {
	out := make([]rune, 0, len(branch))
	for _, r := range branch {
		if r == '/' || r == ' ' {
			out = append(out, '-')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
