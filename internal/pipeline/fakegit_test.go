package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/titabash/kugutsu/internal/git"
)

// fakeGit models just enough repository state for pipeline tests: branches,
// registered worktrees, pending working-tree changes per directory, and
// injectable merge conflicts. Unlike a scripted stub it is directory-aware,
// so concurrent worktrees do not share status output.
type fakeGit struct {
	mu        sync.Mutex
	branches  map[string]bool
	worktrees map[string]string // path -> branch
	changes   map[string]string // dir -> porcelain output of pending changes
	conflicts map[string]int    // dir -> remaining `merge <base>` calls that conflict
	inConflct map[string]bool   // dir is mid-conflicted-merge
	remotes   []string
	merged    []string // branches integrated via merge --no-ff, in order
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		branches:  make(map[string]bool),
		worktrees: make(map[string]string),
		changes:   make(map[string]string),
		conflicts: make(map[string]int),
		inConflct: make(map[string]bool),
	}
}

func useFakeGit(t *testing.T) *fakeGit {
	t.Helper()
	f := newFakeGit()
	git.SetDefaultRunner(f)
	t.Cleanup(func() { git.SetDefaultRunner(nil) })
	return f
}

// SetChanges marks a directory as having uncommitted changes, as an agent
// editing files would.
func (f *fakeGit) SetChanges(dir, porcelain string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes[dir] = porcelain
}

// ConflictOnce makes the next `git merge <base>` in dir fail with a conflict.
func (f *fakeGit) ConflictOnce(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts[dir]++
}

// Worktrees returns the paths still registered as worktrees.
func (f *fakeGit) Worktrees() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for path := range f.worktrees {
		out = append(out, path)
	}
	return out
}

// Branches returns the branches that still exist.
func (f *fakeGit) Branches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for b := range f.branches {
		out = append(out, b)
	}
	return out
}

// MergedBranches returns the branches merged into the base, in merge order.
func (f *fakeGit) MergedBranches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.merged...)
}

func (f *fakeGit) Exec(_ context.Context, dir string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.Join(args, " ")
	switch {
	case key == "rev-parse --git-dir":
		return ".git", nil

	case len(args) == 3 && args[0] == "rev-parse" && args[1] == "--verify":
		ref := strings.TrimPrefix(args[2], "refs/heads/")
		if f.branches[ref] {
			return "deadbeef", nil
		}
		return "", fmt.Errorf("unknown ref %s", ref)

	case key == "worktree list --porcelain":
		var b strings.Builder
		for path, branch := range f.worktrees {
			fmt.Fprintf(&b, "worktree %s\nbranch refs/heads/%s\n\n", path, branch)
		}
		return b.String(), nil

	case len(args) == 6 && args[0] == "worktree" && args[1] == "add" && args[2] == "-b":
		f.branches[args[3]] = true
		f.worktrees[args[4]] = args[3]
		return "", nil

	case len(args) == 4 && args[0] == "worktree" && args[1] == "add":
		f.worktrees[args[2]] = args[3]
		return "", nil

	case len(args) == 4 && args[0] == "worktree" && args[1] == "remove":
		delete(f.worktrees, args[3])
		return "", nil

	case args[0] == "checkout", args[0] == "pull":
		return "", nil

	case key == "remote":
		return strings.Join(f.remotes, "\n"), nil

	case key == "merge --abort":
		f.inConflct[dir] = false
		return "", nil

	case len(args) == 3 && args[0] == "merge" && args[1] == "--no-ff":
		f.merged = append(f.merged, args[2])
		return "", nil

	case len(args) == 2 && args[0] == "merge":
		if f.conflicts[dir] > 0 {
			f.conflicts[dir]--
			f.inConflct[dir] = true
			return "", errors.New("automatic merge failed; fix conflicts")
		}
		return "", nil

	case key == "status --porcelain":
		if f.inConflct[dir] {
			return "UU shared.go\n", nil
		}
		return f.changes[dir], nil

	case key == "add -A":
		return "", nil

	case args[0] == "commit":
		f.changes[dir] = ""
		return "", nil

	case len(args) == 3 && args[0] == "branch" && args[1] == "-d":
		delete(f.branches, args[2])
		return "", nil
	}

	return "", fmt.Errorf("fakeGit: unexpected command %q in %s", key, dir)
}
