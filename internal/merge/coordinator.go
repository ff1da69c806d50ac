// Package merge serializes integration of approved feature branches into the
// base branch. A single worker goroutine drains a FIFO request channel, so at
// most one merge touches the base repository at any moment and waiting
// requests cannot starve.
package merge

import (
	"context"
	"fmt"
	"sync"

	"github.com/titabash/kugutsu/internal/events"
	"github.com/titabash/kugutsu/internal/git"
	"github.com/titabash/kugutsu/internal/logging"
	"github.com/titabash/kugutsu/internal/task"
)

// requestBuffer bounds pending merges. The pipeline never has more in-flight
// tasks than engineers, so this is effectively unbounded.
const requestBuffer = 100

// Request asks the coordinator to merge one approved task.
type Request struct {
	Task       *task.Task
	Result     *task.EngineerResult
	Reviews    []task.ReviewResult
	EngineerID string
}

// Coordinator owns the single-writer merge lane into the base branch.
// Outcomes are reported exclusively through bus events: MergeCompleted on
// success, MergeConflictDetected when the feature side collides with the
// refreshed base, TaskFailed(phase=merge) on hard failures.
type Coordinator struct {
	base       *git.Repo
	baseBranch string
	useRemote  bool
	worktrees  *git.WorktreeManager
	bus        *events.Bus
	logger     *logging.Logger

	requests chan Request
	wg       sync.WaitGroup

	// hook observes merge-lane entry and exit, for invariant tests.
	hook func(taskID string, entered bool)

	// resolve maps a conflict-resolution task ID to the root task whose
	// worktree it works in. Defaults to identity.
	resolve func(taskID string) string

	startOnce sync.Once
	stopOnce  sync.Once
}

// Config collects coordinator construction parameters.
type Config struct {
	// BaseRepo is the base repository path.
	BaseRepo string

	// BaseBranch is the long-lived branch tasks merge into.
	BaseBranch string

	// UseRemote enables `git pull origin <base>` before each merge, when an
	// origin remote exists.
	UseRemote bool
}

// NewCoordinator creates a coordinator. Call Start before enqueueing.
func NewCoordinator(cfg Config, worktrees *git.WorktreeManager, bus *events.Bus, logger *logging.Logger) (*Coordinator, error) {
	base, err := git.NewRepo(cfg.BaseRepo)
	if err != nil {
		return nil, fmt.Errorf("base repository: %w", err)
	}
	if cfg.BaseBranch == "" {
		return nil, fmt.Errorf("base branch is empty")
	}
	if logger == nil {
		logger = logging.New(nil, "Merge", "")
	}
	return &Coordinator{
		base:       base,
		baseBranch: cfg.BaseBranch,
		useRemote:  cfg.UseRemote,
		worktrees:  worktrees,
		bus:        bus,
		logger:     logger,
		requests:   make(chan Request, requestBuffer),
	}, nil
}

// SetInstrumentation installs a hook invoked on merge-lane entry (true) and
// exit (false). Must be called before Start.
func (c *Coordinator) SetInstrumentation(hook func(taskID string, entered bool)) {
	c.hook = hook
}

// SetResolver installs the alias resolver used to find the worktree a merged
// task worked in. Conflict-resolution tasks can nest, so one hop up
// OriginalTaskID is not enough; the resolver walks the whole chain. Must be
// called before Start.
func (c *Coordinator) SetResolver(resolve func(taskID string) string) {
	c.resolve = resolve
}

// Start launches the merge worker. Shutdown never interrupts git mid-merge:
// cancellation is only observed between requests, and Stop waits for the
// in-flight attempt to finish.
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case req, ok := <-c.requests:
					if !ok {
						return
					}
					c.attempt(context.WithoutCancel(ctx), req)
				}
			}
		}()
	})
}

// Stop closes the request channel and waits for the worker to drain.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.requests) })
	c.wg.Wait()
}

// Enqueue submits a merge request. Requests are served strictly in
// submission order.
func (c *Coordinator) Enqueue(req Request) {
	c.requests <- req
}

// attempt runs one merge attempt for req while holding the merge lane.
func (c *Coordinator) attempt(ctx context.Context, req Request) {
	t := req.Task
	if c.hook != nil {
		c.hook(t.ID, true)
		defer c.hook(t.ID, false)
	}
	logger := c.logger.WithID(t.ID)

	// Refresh the base branch.
	if err := c.base.Checkout(ctx, c.baseBranch); err != nil {
		c.fail(req, fmt.Errorf("checkout %s: %w", c.baseBranch, err))
		return
	}
	if c.useRemote && c.base.HasRemote(ctx, "origin") {
		res := git.RetryWithBackoff(ctx, git.TransientRetry, func(ctx context.Context) error {
			return c.base.Pull(ctx, c.baseBranch)
		})
		if !res.Success {
			c.fail(req, fmt.Errorf("pull origin %s: %w", c.baseBranch, res.LastErr))
			return
		}
	}

	// Merge the base into the worktree first. This validates the merge and
	// surfaces conflicts on the feature side, keeping the base branch clean.
	worktree, err := git.NewRepo(t.WorktreePath)
	if err != nil {
		c.fail(req, fmt.Errorf("worktree path: %w", err))
		return
	}

	if mergeErr := worktree.Merge(ctx, c.baseBranch); mergeErr != nil {
		conflicted, statusErr := worktree.HasConflicts(ctx)
		if statusErr == nil && conflicted {
			if abortErr := worktree.AbortMerge(ctx); abortErr != nil {
				logger.Warn("abort worktree merge failed", "error", abortErr)
			}
			logger.Info("merge conflict detected", "branch", t.BranchName, "base", c.baseBranch)
			// The worktree is kept; the conflict-resolution task will run in it.
			c.bus.Emit(events.NewMergeConflictDetected(t, req.Result, req.Reviews, req.EngineerID))
			return
		}
		if abortErr := worktree.AbortMerge(ctx); abortErr != nil {
			logger.Debug("abort after hard merge failure", "error", abortErr)
		}
		c.fail(req, fmt.Errorf("merge %s into worktree: %w", c.baseBranch, mergeErr))
		return
	}

	// The feature side is clean; integrate into the base branch.
	if err := c.base.Checkout(ctx, c.baseBranch); err != nil {
		c.fail(req, fmt.Errorf("checkout %s: %w", c.baseBranch, err))
		return
	}
	if err := c.base.MergeNoFF(ctx, t.BranchName); err != nil {
		if abortErr := c.base.AbortMerge(ctx); abortErr != nil {
			logger.Warn("abort base merge failed", "error", abortErr)
		}
		c.fail(req, fmt.Errorf("merge --no-ff %s: %w", t.BranchName, err))
		return
	}

	logger.Info("merged", "branch", t.BranchName, "base", c.baseBranch)
	c.bus.Emit(events.NewMergeCompleted(t, true, nil))
	c.cleanup(ctx, t, logger)
}

// cleanup removes the merged task's worktree and branch, best-effort.
func (c *Coordinator) cleanup(ctx context.Context, t *task.Task, logger *logging.Logger) {
	// Conflict-resolution tasks work in the root task's worktree. They can
	// nest, so follow the full alias chain rather than one OriginalTaskID hop.
	worktreeID := t.ID
	if c.resolve != nil {
		worktreeID = c.resolve(t.ID)
	} else if t.OriginalTaskID != "" {
		worktreeID = t.OriginalTaskID
	}
	if c.worktrees != nil {
		c.worktrees.Release(ctx, worktreeID)
	}
	if err := c.base.DeleteBranch(ctx, t.BranchName); err != nil {
		logger.Warn("delete merged branch failed", "branch", t.BranchName, "error", err)
	}
}

func (c *Coordinator) fail(req Request, err error) {
	c.logger.Error("merge failed", "task", req.Task.ID, "error", err)
	c.bus.Emit(events.NewTaskFailed(req.Task, events.PhaseMerge, err))
}
