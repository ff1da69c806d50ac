package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/titabash/kugutsu/internal/logging"
)

// BranchPrefix is prepended to task IDs to form feature branch names.
const BranchPrefix = "feature/task-"

// BranchFor derives the feature branch name for a task.
func BranchFor(taskID string) string {
	return BranchPrefix + taskID
}

// Worktree represents an active git worktree for a task.
type Worktree struct {
	// Path is the absolute path to the worktree directory
	Path string

	// Branch is the branch name checked out in this worktree
	Branch string

	// TaskID is the task this worktree is associated with
	TaskID string
}

// WorktreeManager creates and removes per-task git worktrees. Acquire is
// idempotent and safe for concurrent use; calls for the same task are
// collapsed into one in-flight git invocation.
type WorktreeManager struct {
	// RepoRoot is the absolute path to the base repository
	RepoRoot string

	// Base is the directory worktrees are created under
	Base string

	// BaseBranch is the branch new feature branches fork from
	BaseBranch string

	logger *logging.Logger
	group  singleflight.Group
}

// NewWorktreeManager creates a worktree manager and verifies the base
// repository. A nil logger disables manager logging.
func NewWorktreeManager(ctx context.Context, repoRoot, base, baseBranch string, logger *logging.Logger) (*WorktreeManager, error) {
	if !filepath.IsAbs(repoRoot) {
		return nil, fmt.Errorf("base repository path must be absolute: %s", repoRoot)
	}
	if baseBranch == "" {
		return nil, fmt.Errorf("base branch is empty")
	}
	if base == "" {
		base = filepath.Join(repoRoot, ".kugutsu", "worktrees")
	}
	if logger == nil {
		logger = logging.New(nil, "Worktree", "")
	}

	if _, err := gitExec(ctx, repoRoot, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", repoRoot, err)
	}

	return &WorktreeManager{
		RepoRoot:   repoRoot,
		Base:       filepath.Clean(base),
		BaseBranch: baseBranch,
		logger:     logger,
	}, nil
}

// PathFor derives the worktree directory for a task.
func (m *WorktreeManager) PathFor(taskID string) string {
	return filepath.Join(m.Base, "task-"+taskID)
}

type acquired struct {
	path   string
	branch string
}

// Acquire ensures a worktree and feature branch exist for the task and
// returns their locations. Repeated calls return the same pair and create
// nothing new. Concurrent calls for the same task share one execution;
// different tasks proceed in parallel.
func (m *WorktreeManager) Acquire(ctx context.Context, taskID string) (path, branch string, err error) {
	v, err, _ := m.group.Do(taskID, func() (any, error) {
		return m.acquire(ctx, taskID)
	})
	if err != nil {
		return "", "", err
	}
	a := v.(acquired)
	return a.path, a.branch, nil
}

func (m *WorktreeManager) acquire(ctx context.Context, taskID string) (acquired, error) {
	path := m.PathFor(taskID)
	branch := BranchFor(taskID)

	registered, err := m.registeredPaths(ctx)
	if err != nil {
		return acquired{}, err
	}
	if registered[path] {
		return acquired{path: path, branch: branch}, nil
	}

	if err := os.MkdirAll(m.Base, 0755); err != nil {
		return acquired{}, fmt.Errorf("create worktree base directory: %w", err)
	}

	branchExists := m.branchExists(ctx, branch)
	if branchExists {
		// Branch survives from an earlier run; check it out into a fresh
		// worktree rather than forking a duplicate.
		if _, err := gitExec(ctx, m.RepoRoot, "worktree", "add", path, branch); err != nil {
			return acquired{}, fmt.Errorf("attach worktree for existing branch %s: %w", branch, err)
		}
	} else {
		_, err := gitExec(ctx, m.RepoRoot, "worktree", "add", "-b", branch, path, m.BaseBranch)
		if err != nil {
			// The branch may have appeared between the existence check and
			// the add. That case is benign: attach to it instead.
			if m.branchExists(ctx, branch) {
				if _, retryErr := gitExec(ctx, m.RepoRoot, "worktree", "add", path, branch); retryErr == nil {
					err = nil
				}
			}
			if err != nil {
				return acquired{}, fmt.Errorf("create worktree for %s: %w", taskID, err)
			}
		}
	}

	m.logger.Info("worktree ready", "task", taskID, "branch", branch, "path", path)
	return acquired{path: path, branch: branch}, nil
}

func (m *WorktreeManager) branchExists(ctx context.Context, branch string) bool {
	_, err := gitExec(ctx, m.RepoRoot, "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

// Release removes the task's worktree. It is best-effort: failures are
// logged, never returned, because release runs on cleanup paths that must
// not cascade. Releasing an absent worktree is a no-op.
func (m *WorktreeManager) Release(ctx context.Context, taskID string) {
	path := m.PathFor(taskID)

	registered, err := m.registeredPaths(ctx)
	if err == nil && !registered[path] {
		return
	}

	if _, err := gitExec(ctx, m.RepoRoot, "worktree", "remove", "--force", path); err != nil {
		m.logger.Warn("worktree remove failed", "task", taskID, "error", err)
	}
	if err := os.RemoveAll(path); err != nil {
		m.logger.Warn("worktree directory cleanup failed", "task", taskID, "error", err)
	}
}

// Exists reports whether a worktree is registered for the task.
func (m *WorktreeManager) Exists(ctx context.Context, taskID string) bool {
	registered, err := m.registeredPaths(ctx)
	if err != nil {
		return false
	}
	return registered[m.PathFor(taskID)]
}

// List returns all worktrees under the manager's base directory.
func (m *WorktreeManager) List(ctx context.Context) ([]*Worktree, error) {
	out, err := gitExec(ctx, m.RepoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	resolvedBase, err := filepath.EvalSymlinks(m.Base)
	if err != nil {
		resolvedBase = m.Base
	}

	var worktrees []*Worktree
	var currentPath, currentBranch string

	flush := func() {
		if currentPath == "" {
			return
		}
		resolved, err := filepath.EvalSymlinks(currentPath)
		if err != nil {
			resolved = currentPath
		}
		rel, err := filepath.Rel(resolvedBase, resolved)
		if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			worktrees = append(worktrees, &Worktree{
				Path:   currentPath,
				Branch: currentBranch,
				TaskID: strings.TrimPrefix(rel, "task-"),
			})
		}
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			currentPath = ""
			currentBranch = ""
			continue
		}
		if after, ok := strings.CutPrefix(line, "worktree "); ok {
			currentPath = after
		} else if after, ok := strings.CutPrefix(line, "branch "); ok {
			currentBranch = strings.TrimPrefix(after, "refs/heads/")
		}
	}
	flush()

	return worktrees, nil
}

// Prune drops stale administrative entries for worktrees whose directories
// are gone.
func (m *WorktreeManager) Prune(ctx context.Context) error {
	_, err := gitExec(ctx, m.RepoRoot, "worktree", "prune")
	return err
}

func (m *WorktreeManager) registeredPaths(ctx context.Context) (map[string]bool, error) {
	out, err := gitExec(ctx, m.RepoRoot, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	paths := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		if after, ok := strings.CutPrefix(strings.TrimSpace(line), "worktree "); ok {
			paths[filepath.Clean(after)] = true
		}
	}
	return paths, nil
}
