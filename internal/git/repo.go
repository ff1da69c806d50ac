package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Repo provides git operations bound to a specific repository path (the base
// repository or a worktree).
type Repo struct {
	path string
}

// NewRepo creates a Repo for the given path. The path must be absolute; it
// is not required to exist until the first operation runs.
func NewRepo(path string) (*Repo, error) {
	if path == "" {
		return nil, fmt.Errorf("repository path is empty")
	}
	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("repository path must be absolute: %s", path)
	}
	return &Repo{path: filepath.Clean(path)}, nil
}

// Path returns the repository path this Repo is bound to.
func (r *Repo) Path() string {
	return r.path
}

// Verify checks that the path is inside a git repository.
func (r *Repo) Verify(ctx context.Context) error {
	if _, err := gitExec(ctx, r.path, "rev-parse", "--git-dir"); err != nil {
		return fmt.Errorf("%s is not a git repository: %w", r.path, err)
	}
	return nil
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := gitExec(ctx, r.path, "branch", "--show-current")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(ctx context.Context, branch string) bool {
	_, err := gitExec(ctx, r.path, "rev-parse", "--verify", "refs/heads/"+branch)
	return err == nil
}

// Checkout switches to the given branch.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	_, err := gitExec(ctx, r.path, "checkout", branch)
	return err
}

// Pull runs `git pull origin <branch>`.
func (r *Repo) Pull(ctx context.Context, branch string) error {
	_, err := gitExec(ctx, r.path, "pull", "origin", branch)
	return err
}

// HasRemote reports whether the named remote is configured.
func (r *Repo) HasRemote(ctx context.Context, name string) bool {
	out, err := gitExec(ctx, r.path, "remote")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == name {
			return true
		}
	}
	return false
}

// Merge runs `git merge <branch>`. The returned error covers both conflicts
// and hard failures; callers distinguish them via HasConflicts.
func (r *Repo) Merge(ctx context.Context, branch string) error {
	_, err := gitExec(ctx, r.path, "merge", branch)
	return err
}

// MergeNoFF runs `git merge --no-ff <branch>`, always producing a merge
// commit whose second parent is the branch tip.
func (r *Repo) MergeNoFF(ctx context.Context, branch string) error {
	_, err := gitExec(ctx, r.path, "merge", "--no-ff", branch)
	return err
}

// AbortMerge runs `git merge --abort`.
func (r *Repo) AbortMerge(ctx context.Context) error {
	_, err := gitExec(ctx, r.path, "merge", "--abort")
	return err
}

// DeleteBranch removes a fully merged local branch (`git branch -d`).
func (r *Repo) DeleteBranch(ctx context.Context, branch string) error {
	_, err := gitExec(ctx, r.path, "branch", "-d", branch)
	return err
}

// RevParse resolves a ref to a commit hash.
func (r *Repo) RevParse(ctx context.Context, ref string) (string, error) {
	out, err := gitExec(ctx, r.path, "rev-parse", "--verify", ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// StatusEntry is one line of `git status --porcelain`.
type StatusEntry struct {
	// Code is the two-character XY status field.
	Code string

	// Path is the file path, relative to the repository root.
	Path string
}

// Conflicted reports whether the entry marks an unresolved merge conflict.
// Git uses UU (both modified), AA (both added) and DD (both deleted).
func (e StatusEntry) Conflicted() bool {
	switch e.Code {
	case "UU", "AA", "DD":
		return true
	}
	return false
}

// Status returns the parsed `git status --porcelain` entries.
func (r *Repo) Status(ctx context.Context) ([]StatusEntry, error) {
	out, err := gitExec(ctx, r.path, "status", "--porcelain")
	if err != nil {
		return nil, err
	}

	var entries []StatusEntry
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		entries = append(entries, StatusEntry{
			Code: line[:2],
			Path: strings.TrimSpace(line[3:]),
		})
	}
	return entries, nil
}

// HasConflicts reports whether the working tree has unresolved conflicts.
func (r *Repo) HasConflicts(ctx context.Context) (bool, error) {
	entries, err := r.Status(ctx)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Conflicted() {
			return true, nil
		}
	}
	return false, nil
}

// ChangedFiles returns the paths touched in the working tree.
func (r *Repo) ChangedFiles(ctx context.Context) ([]string, error) {
	entries, err := r.Status(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		files = append(files, e.Path)
	}
	return files, nil
}

// HasUncommittedChanges checks if there are uncommitted changes.
func (r *Repo) HasUncommittedChanges(ctx context.Context) (bool, error) {
	out, err := gitExec(ctx, r.path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// StageAll stages all changes (`git add -A`).
func (r *Repo) StageAll(ctx context.Context) error {
	_, err := gitExec(ctx, r.path, "add", "-A")
	return err
}

// Commit records staged changes. NoVerify skips hooks, which agent-produced
// commits always do so a stray hook cannot wedge the pipeline.
func (r *Repo) Commit(ctx context.Context, message string) error {
	_, err := gitExec(ctx, r.path, "commit", "--no-verify", "-m", message)
	return err
}
