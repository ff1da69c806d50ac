// Package git shells out to the git binary for every repository operation:
// worktree lifecycle, branch plumbing, and the merge verbs the coordinator
// drives. All commands go through the Runner seam so tests can script
// responses without a real repository.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes git commands.
type Runner interface {
	Exec(ctx context.Context, dir string, args ...string) (string, error)
}

// osRunner shells out to the real git binary.
type osRunner struct{}

func (osRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	out, err := cmd.Output()
	if err == nil {
		return string(out), nil
	}

	// Surface stderr in the error; git writes its diagnostics there.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", fmt.Errorf("git %s failed: %w\nstderr: %s",
			strings.Join(args, " "), err, string(exitErr.Stderr))
	}
	return "", fmt.Errorf("git %s failed: %w", strings.Join(args, " "), err)
}

var (
	runnerMu      sync.RWMutex
	defaultRunner Runner = osRunner{}
)

// DefaultRunner returns the current default runner.
func DefaultRunner() Runner {
	runnerMu.RLock()
	defer runnerMu.RUnlock()
	return defaultRunner
}

// SetDefaultRunner replaces the default runner. Intended for tests; passing
// nil restores the real git binary.
func SetDefaultRunner(runner Runner) {
	runnerMu.Lock()
	defer runnerMu.Unlock()
	if runner == nil {
		runner = osRunner{}
	}
	defaultRunner = runner
}

// gitExec runs one git command through the current default runner.
func gitExec(ctx context.Context, dir string, args ...string) (string, error) {
	return DefaultRunner().Exec(ctx, dir, args...)
}
