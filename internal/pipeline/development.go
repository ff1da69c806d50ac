package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/titabash/kugutsu/internal/agent"
	"github.com/titabash/kugutsu/internal/events"
	"github.com/titabash/kugutsu/internal/git"
	"github.com/titabash/kugutsu/internal/logging"
	"github.com/titabash/kugutsu/internal/metrics"
	"github.com/titabash/kugutsu/internal/task"
)

// developmentStage runs one engineer invocation per dequeued task. It does
// not own the queue or the scheduler: the Manager's worker loop pops items,
// handles state transitions, and requeues on retry.
type developmentStage struct {
	executor  agent.Executor
	worktrees *git.WorktreeManager
	engineers *engineerCache
	bus       *events.Bus
	metrics   *metrics.Metrics
	logger    *logging.Logger

	// update applies a task mutation under the scheduler lock, so snapshot
	// writers never read the fields mid-write.
	update func(t *task.Task, fn func(*task.Task))

	maxTurns   int
	model      string
	maxRetries int
	protected  []string

	mu       sync.Mutex
	attempts map[string]int
}

func newDevelopmentStage(executor agent.Executor, worktrees *git.WorktreeManager, engineers *engineerCache,
	bus *events.Bus, m *metrics.Metrics, logger *logging.Logger, update func(t *task.Task, fn func(*task.Task)),
	maxTurns int, model string, maxRetries int, protected []string) *developmentStage {
	if logger == nil {
		logger = logging.New(nil, "Engineer", "")
	}
	if update == nil {
		update = func(t *task.Task, fn func(*task.Task)) { fn(t) }
	}
	return &developmentStage{
		executor:   executor,
		worktrees:  worktrees,
		engineers:  engineers,
		bus:        bus,
		metrics:    m,
		logger:     logger,
		update:     update,
		maxTurns:   maxTurns,
		model:      model,
		maxRetries: maxRetries,
		protected:  protected,
		attempts:   make(map[string]int),
	}
}

// process runs one development attempt. It emits DevelopmentCompleted on
// success and TaskFailed when retries are exhausted; in between it returns
// requeue=true and the caller puts the item back at the same priority.
func (s *developmentStage) process(ctx context.Context, item *workItem) (requeue bool) {
	t := item.task

	if t.WorktreePath == "" {
		path, branch, err := s.worktrees.Acquire(ctx, t.ID)
		if err != nil {
			return s.fail(t, fmt.Errorf("acquire worktree: %w", err))
		}
		s.update(t, func(t *task.Task) {
			t.WorktreePath = path
			t.BranchName = branch
		})
	}

	if t.EngineerID == "" {
		id := "engineer-" + uuid.NewString()[:8]
		s.update(t, func(t *task.Task) { t.EngineerID = id })
	}
	logger := s.logger.WithID(t.EngineerID)

	// Conflict-resolution tasks carry a fresh EngineerID with no cached
	// session, so the resume handle is naturally empty for them.
	resume := s.engineers.Session(t.EngineerID)

	logger.Info("development start",
		"task", t.ID, "title", t.Title, "worktree", t.WorktreePath, "resume", resume != "")
	start := time.Now()
	s.metrics.AgentInvocation(string(agent.RoleEngineer))

	res, err := s.executor.Execute(ctx, buildEngineerPrompt(t), agent.ExecuteOptions{
		WorkingDirectory: t.WorktreePath,
		MaxTurns:         s.maxTurns,
		AllowedTools:     agent.RoleEngineer.AllowedTools(),
		ResumeHandle:     resume,
		Model:            s.model,
	})

	result := &task.EngineerResult{
		TaskID:        t.ID,
		EngineerID:    t.EngineerID,
		Duration:      time.Since(start),
		NeedsReReview: t.IsConflictResolution(),
	}

	switch {
	case err != nil:
		result.Error = err.Error()
	case !res.Success:
		result.Error = res.ErrorMessage
		result.Messages = res.Messages
	default:
		result.Success = true
		result.Messages = res.Messages
	}

	if result.Success {
		changed, cerr := s.collectChanges(ctx, t, res)
		if cerr != nil {
			result.Success = false
			result.Error = cerr.Error()
		} else {
			result.ChangedFiles = changed
			if verr := s.checkProtected(changed); verr != nil {
				result.Success = false
				result.Error = verr.Error()
			}
		}
	}

	if !result.Success {
		s.mu.Lock()
		s.attempts[t.ID]++
		n := s.attempts[t.ID]
		s.mu.Unlock()

		// maxRetries counts re-admissions after the initial attempt.
		if n <= s.maxRetries {
			logger.Warn("development failed, requeueing",
				"task", t.ID, "failures", n, "retries", s.maxRetries, "error", result.Error)
			return true
		}
		return s.fail(t, fmt.Errorf("development failed after %d attempts: %s", n, result.Error))
	}

	s.engineers.Store(t.EngineerID, res.SessionID)
	logger.Info("development complete",
		"task", t.ID, "files", len(result.ChangedFiles),
		"duration", result.Duration.Round(time.Millisecond))
	s.bus.Emit(events.NewDevelopmentCompleted(t, result, t.EngineerID))
	return false
}

func (s *developmentStage) fail(t *task.Task, err error) bool {
	// A conflict-resolution task failing terminally keeps its worktree, so
	// the half-resolved state stays inspectable. The phase tells the failure
	// handler apart.
	phase := events.PhaseDevelopment
	if t.IsConflictResolution() {
		phase = events.PhaseMergeConflict
	}
	s.logger.Error("development failed", "task", t.ID, "error", err)
	s.bus.Emit(events.NewTaskFailed(t, phase, err))
	return false
}

// collectChanges commits anything the engineer left uncommitted and returns
// the changed paths. Paths come from git status before the sweep commit,
// merged with what the transcript shows the agent wrote (files the agent
// already committed do not show in status).
func (s *developmentStage) collectChanges(ctx context.Context, t *task.Task, res *agent.Result) ([]string, error) {
	repo, err := git.NewRepo(t.WorktreePath)
	if err != nil {
		return nil, err
	}

	changed, err := repo.ChangedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("inspect worktree: %w", err)
	}

	if len(changed) > 0 {
		if err := repo.StageAll(ctx); err != nil {
			return nil, fmt.Errorf("stage changes: %w", err)
		}
		if err := repo.Commit(ctx, t.Title); err != nil {
			return nil, fmt.Errorf("commit changes: %w", err)
		}
	}

	seen := make(map[string]bool, len(changed))
	for _, f := range changed {
		seen[f] = true
	}
	for _, f := range res.ChangedToolFiles() {
		if !seen[f] {
			seen[f] = true
			changed = append(changed, f)
		}
	}
	return changed, nil
}

// checkProtected rejects results that touched any protected path.
func (s *developmentStage) checkProtected(changed []string) error {
	for _, pattern := range s.protected {
		for _, f := range changed {
			ok, err := doublestar.Match(pattern, f)
			if err != nil {
				continue
			}
			if ok {
				return fmt.Errorf("protected path %s was modified (pattern %s)", f, pattern)
			}
		}
	}
	return nil
}
