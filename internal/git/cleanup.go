package git

import (
	"context"
	"strings"
)

// CleanupOrphans removes worktrees and feature branches left behind by an
// earlier run: every worktree under the manager's base directory is removed,
// stale administrative entries are pruned, and fully merged feature branches
// are deleted. Run before a fresh pipeline when --cleanup is set.
func (m *WorktreeManager) CleanupOrphans(ctx context.Context) error {
	worktrees, err := m.List(ctx)
	if err != nil {
		return err
	}

	for _, wt := range worktrees {
		m.logger.Info("removing orphaned worktree", "task", wt.TaskID, "path", wt.Path)
		m.Release(ctx, wt.TaskID)
	}

	if err := m.Prune(ctx); err != nil {
		m.logger.Warn("worktree prune failed", "error", err)
	}

	// Delete leftover feature branches. `branch -d` refuses unmerged
	// branches, which is the safe default here: those may hold unfinished
	// work.
	out, err := gitExec(ctx, m.RepoRoot, "branch", "--list", BranchPrefix+"*", "--format", "%(refname:short)")
	if err != nil {
		return err
	}
	for _, branch := range strings.Split(out, "\n") {
		branch = strings.TrimSpace(branch)
		if branch == "" {
			continue
		}
		if _, err := gitExec(ctx, m.RepoRoot, "branch", "-d", branch); err != nil {
			m.logger.Warn("orphaned branch not deleted", "branch", branch, "error", err)
			continue
		}
		m.logger.Info("deleted orphaned branch", "branch", branch)
	}
	return nil
}
