// Package pipeline wires the three processing stages together: a bounded
// development queue, a bounded review queue, and the single-lane merge
// coordinator, connected by the event bus and gated by the dependency
// scheduler.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/titabash/kugutsu/internal/agent"
	"github.com/titabash/kugutsu/internal/config"
	"github.com/titabash/kugutsu/internal/events"
	"github.com/titabash/kugutsu/internal/git"
	"github.com/titabash/kugutsu/internal/logging"
	"github.com/titabash/kugutsu/internal/merge"
	"github.com/titabash/kugutsu/internal/metrics"
	"github.com/titabash/kugutsu/internal/review"
	"github.com/titabash/kugutsu/internal/scheduler"
	"github.com/titabash/kugutsu/internal/state"
	"github.com/titabash/kugutsu/internal/task"
)

// Manager owns one orchestrator run: the queues, the engineer cache, the
// dependency scheduler, and the event wiring between stages.
type Manager struct {
	cfg       *config.Config
	bus       *events.Bus
	sched     *scheduler.Manager
	worktrees *git.WorktreeManager
	coord     *merge.Coordinator
	dev       *developmentStage
	reviewer  *review.Workflow
	engineers *engineerCache
	metrics   *metrics.Metrics
	reporter  *Reporter
	logger    *logging.Logger

	devQueue    *workQueue
	reviewQueue *workQueue

	workspace *state.Workspace
	history   *state.History

	mu           sync.Mutex
	reviewRounds map[string]int
	reviews      map[string][]task.ReviewResult
	started      map[string]time.Time

	settled    chan struct{}
	settleOnce sync.Once

	// runCtx is the run's context, kept for event handlers which have none.
	runCtx context.Context

	runID   string
	request string
}

// NewManager assembles a pipeline over the given executor. The worktree
// manager is created here and validates the base repository up front.
func NewManager(ctx context.Context, cfg *config.Config, executor agent.Executor, bus *events.Bus, met *metrics.Metrics, sink logging.Sink) (*Manager, error) {
	logger := logging.New(sink, "Pipeline", "")

	worktrees, err := git.NewWorktreeManager(ctx, cfg.BaseRepo, cfg.WorktreeBase, cfg.BaseBranch,
		logging.New(sink, "Worktree", ""))
	if err != nil {
		return nil, err
	}

	coord, err := merge.NewCoordinator(merge.Config{
		BaseRepo:   cfg.BaseRepo,
		BaseBranch: cfg.BaseBranch,
		UseRemote:  cfg.UseRemote,
	}, worktrees, bus, logging.New(sink, "Merge", ""))
	if err != nil {
		return nil, err
	}

	engineers := newEngineerCache()
	m := &Manager{
		cfg:       cfg,
		bus:       bus,
		sched:     scheduler.NewManager(),
		worktrees: worktrees,
		coord:     coord,
		engineers: engineers,
		metrics:   met,
		reporter:  newReporter(),
		logger:    logger,

		devQueue:    newWorkQueue(),
		reviewQueue: newWorkQueue(),

		reviewRounds: make(map[string]int),
		reviews:      make(map[string][]task.ReviewResult),
		started:      make(map[string]time.Time),
		settled:      make(chan struct{}),
	}

	coord.SetResolver(m.sched.Resolve)

	m.dev = newDevelopmentStage(executor, worktrees, engineers, bus, met,
		logging.New(sink, "Engineer", ""), m.updateTask,
		cfg.Agent.MaxTurns, cfg.Agent.Model, cfg.Retry.Development, cfg.ProtectedPaths)

	m.reviewer = review.NewWorkflow(executor, review.Config{
		MaxTurns:       cfg.Agent.MaxTurns,
		Model:          cfg.Agent.Model,
		DefaultVerdict: task.Verdict(cfg.Review.DefaultVerdict),
	}, logging.New(sink, "TechLead", ""))

	return m, nil
}

// Summary is the outcome of one run.
type Summary struct {
	RunID    string
	Merged   int
	Failed   int
	Blocked  int
	Duration time.Duration

	// Report is the rendered final summary.
	Report string
}

// ExitCode follows the CLI contract: 0 on full success, 1 on any task
// failure. Setup errors never reach a Summary.
func (s *Summary) ExitCode() int {
	if s.Failed > 0 || s.Blocked > 0 {
		return 1
	}
	return 0
}

// Run executes the full pipeline for a planned task list and blocks until
// every task is merged, failed, or blocked, or until ctx is cancelled. The
// task list must be non-empty and acyclic.
func (m *Manager) Run(ctx context.Context, request string, tasks []*task.Task) (*Summary, error) {
	start := time.Now()
	m.runID = ulid.Make().String()
	m.request = request
	m.runCtx = ctx

	if err := m.sched.Load(tasks); err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	workspace, err := state.NewWorkspace(m.cfg.BaseRepo, request)
	if err != nil {
		return nil, err
	}
	m.workspace = workspace
	if err := workspace.WriteInstructions(tasks); err != nil {
		m.logger.Warn("write instruction files failed", "error", err)
	}

	if m.cfg.History.Enabled {
		h, err := state.OpenHistory(workspace.Root)
		if err != nil {
			m.logger.Warn("run history disabled", "error", err)
		} else {
			m.history = h
		}
	}
	defer m.history.Close()
	if err := m.history.RecordRunStart(m.runID, request, start); err != nil {
		m.logger.Warn("record run start failed", "error", err)
	}

	m.logger.Info("pipeline start",
		"run", m.runID, "tasks", len(tasks), "engineers", m.cfg.MaxEngineers)

	unsubscribe := m.bus.Subscribe(m.handleEvent)
	defer unsubscribe()

	m.coord.Start(ctx)

	var group errgroup.Group
	for i := 0; i < m.cfg.MaxEngineers; i++ {
		group.Go(func() error { return m.devWorker(ctx) })
		group.Go(func() error { return m.reviewWorker(ctx) })
	}

	for _, t := range m.sched.ReadyTasks() {
		m.admitDevelopment(t)
	}
	m.snapshot()

	runErr := m.waitForCompletion(ctx)

	// Shutdown: stop feeding the stages, let workers drain, then wait for
	// any in-flight merge. Agent invocations observe ctx and fail fast on
	// cancellation; git merges are never interrupted.
	m.devQueue.Close()
	m.reviewQueue.Close()
	_ = group.Wait()
	m.coord.Stop()

	m.finalizeState()

	counts := m.sched.Counts()
	blocked := len(m.sched.BlockedTasks())
	summary := &Summary{
		RunID:    m.runID,
		Merged:   counts[task.StatusMerged],
		Failed:   counts[task.StatusFailed],
		Blocked:  blocked,
		Duration: time.Since(start),
		Report:   m.reporter.Report(m.sched),
	}

	if err := m.history.RecordRunFinish(m.runID, time.Now(), summary.Merged, summary.Failed, blocked); err != nil {
		m.logger.Warn("record run finish failed", "error", err)
	}

	m.logger.Info("pipeline done",
		"run", m.runID,
		"merged", summary.Merged, "failed", summary.Failed, "blocked", blocked,
		"duration", summary.Duration.Round(time.Second))
	return summary, runErr
}

// waitForCompletion blocks until every task settles or ctx is cancelled.
func (m *Manager) waitForCompletion(ctx context.Context) error {
	select {
	case <-m.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) checkSettled() {
	if m.sched.AllSettled() {
		m.settleOnce.Do(func() { close(m.settled) })
	}
}

// updateTask applies fn under the scheduler lock so snapshot writers never
// observe a half-applied mutation. Conflict-resolution tasks live outside the
// scheduler and never appear in snapshots, so they are mutated directly.
func (m *Manager) updateTask(t *task.Task, fn func(*task.Task)) {
	if !m.sched.Update(t.ID, fn) {
		fn(t)
	}
}

// admitDevelopment pushes a task onto the development queue and records its
// pipeline entry time.
func (m *Manager) admitDevelopment(t *task.Task) {
	m.mu.Lock()
	if _, ok := m.started[t.ID]; !ok {
		m.started[t.ID] = time.Now()
	}
	m.mu.Unlock()
	m.devQueue.Push(&workItem{task: t})
}

// devWorker is one of maxEngineers development workers.
func (m *Manager) devWorker(ctx context.Context) error {
	for {
		item, ok := m.devQueue.Pop()
		if !ok {
			return nil
		}
		m.beginDevelopment(item.task)
		if m.dev.process(ctx, item) {
			m.devQueue.Push(item)
		}
	}
}

// beginDevelopment moves the task into running from whichever admissible
// state it is in. Revisions and retries are already running; conflict
// resolutions re-enter development from the original's merging state.
func (m *Manager) beginDevelopment(t *task.Task) {
	current := m.sched.Task(t.ID)
	if current == nil {
		return
	}
	switch current.Status {
	case task.StatusReady:
		m.sched.MarkRunning(t.ID)
	case task.StatusMerging:
		m.sched.MarkConflictResolving(t.ID)
	}
	m.snapshot()
}

// reviewWorker is one of maxEngineers review workers.
func (m *Manager) reviewWorker(ctx context.Context) error {
	for {
		item, ok := m.reviewQueue.Pop()
		if !ok {
			return nil
		}
		m.sched.MarkReviewing(item.task.ID)
		m.snapshot()

		m.metrics.AgentInvocation(string(agent.RoleTechLead))
		rv := m.reviewer.Review(ctx, item.task, item.result)
		m.metrics.ReviewCompleted(string(rv.Verdict))

		m.mu.Lock()
		m.reviews[item.task.ID] = append(m.reviews[item.task.ID], *rv)
		m.mu.Unlock()

		needsRevision := rv.Verdict == task.VerdictChangesRequested
		m.bus.Emit(events.NewReviewCompleted(item.task, rv, item.result, needsRevision))
	}
}

// handleEvent is the single bus listener implementing the stage wiring.
// Dispatch is synchronous on the emitter's goroutine; all shared maps are
// behind m.mu and DAG state behind the scheduler's own lock.
func (m *Manager) handleEvent(e events.Event) {
	switch e.Type {
	case events.DevelopmentCompleted:
		p := e.Payload.(*events.DevelopmentCompletedPayload)
		m.sched.MarkDeveloped(p.Task.ID)
		m.snapshot()
		m.reviewQueue.Push(&workItem{task: p.Task, result: p.Result, engineerID: p.EngineerID})

	case events.ReviewCompleted:
		p := e.Payload.(*events.ReviewCompletedPayload)
		m.routeReview(p)

	case events.MergeReady:
		p := e.Payload.(*events.MergeReadyPayload)
		m.sched.MarkMerging(p.Task.ID)
		m.snapshot()
		m.coord.Enqueue(merge.Request{
			Task:       p.Task,
			Result:     p.Result,
			Reviews:    p.Reviews,
			EngineerID: p.EngineerID,
		})

	case events.MergeConflictDetected:
		p := e.Payload.(*events.MergeConflictPayload)
		m.metrics.MergeConflict()
		conflict := task.NewConflictResolution(p.Task, p.Result, p.Reviews)
		m.sched.Alias(conflict.ID, p.Task.ID)
		m.logger.Info("conflict resolution scheduled",
			"task", p.Task.ID, "conflict", conflict.ID)
		m.devQueue.Push(&workItem{task: conflict})

	case events.MergeCompleted:
		p := e.Payload.(*events.MergeCompletedPayload)
		if p.Success {
			m.completeMerge(p.Task)
		}

	case events.TaskFailed:
		p := e.Payload.(*events.TaskFailedPayload)
		m.completeFailure(p)
	}
}

// routeReview applies the verdict policy from a finished review.
func (m *Manager) routeReview(p *events.ReviewCompletedPayload) {
	t := p.Task

	// Terminal failure of a conflict-resolution task keeps the worktree, same
	// as in development.
	failPhase := events.PhaseReview
	if t.IsConflictResolution() {
		failPhase = events.PhaseMergeConflict
	}

	if p.Review.Verdict == task.VerdictError {
		m.bus.Emit(events.NewTaskFailed(t, failPhase, errors.New(p.Review.Error)))
		return
	}

	if p.NeedsRevision {
		m.mu.Lock()
		m.reviewRounds[t.ID]++
		rounds := m.reviewRounds[t.ID]
		m.mu.Unlock()

		if rounds > m.cfg.Retry.Review {
			m.bus.Emit(events.NewTaskFailed(t, failPhase,
				fmt.Errorf("review requested changes %d times (limit %d)", rounds, m.cfg.Retry.Review)))
			return
		}

		m.sched.MarkRevising(t.ID)
		revise := func(t *task.Task) {
			if !t.IsRevision() {
				t.Title = task.RevisionTitlePrefix + " " + t.Title
			}
			t.Description = revisionDescription(t.Description, p.Review.Comments)
		}
		m.updateTask(t, revise)
		m.logger.Info("revision requested",
			"task", t.ID, "round", rounds, "comments", len(p.Review.Comments))
		m.snapshot()
		m.devQueue.Push(&workItem{task: t})
		return
	}

	// APPROVED or COMMENTED.
	m.mu.Lock()
	history := append([]task.ReviewResult(nil), m.reviews[t.ID]...)
	m.mu.Unlock()
	m.bus.Emit(events.NewMergeReady(t, p.Result, history, t.EngineerID))
}

// completeMerge finishes a successful merge: promotes dependents, releases
// the engineer session, and records the outcome.
func (m *Manager) completeMerge(t *task.Task) {
	promoted := m.sched.MarkMerged(t.ID)
	resolved := m.sched.Task(t.ID)

	m.mu.Lock()
	started, tracked := m.started[resolved.ID]
	m.mu.Unlock()
	if tracked {
		m.metrics.TaskMerged(time.Since(started))
	} else {
		m.metrics.TaskMerged(0)
	}

	m.reporter.TaskMerged(resolved.ID)
	m.engineers.Drop(t.EngineerID)
	if resolved.EngineerID != t.EngineerID {
		m.engineers.Drop(resolved.EngineerID)
	}

	m.recordOutcome(resolved, string(task.StatusMerged), "")

	if len(promoted) > 0 {
		m.bus.Emit(events.NewDependencyResolved(resolved.ID, promoted))
		for _, next := range promoted {
			m.logger.Info("dependency resolved", "merged", resolved.ID, "ready", next.ID)
			m.admitDevelopment(next)
		}
	}

	m.snapshot()
	m.checkSettled()
}

// completeFailure finishes a terminal failure: fails the task, surfaces the
// blocked dependents, and tears down the task's resources. A conflict
// resolution that failed keeps its worktree for inspection.
func (m *Manager) completeFailure(p *events.TaskFailedPayload) {
	t := p.Task
	affected := m.sched.MarkFailed(t.ID)
	resolved := m.sched.Task(t.ID)

	m.metrics.TaskFailed(string(p.Phase))
	m.reporter.TaskFailed(resolved.ID, p.Phase, p.Error)
	for _, dep := range affected {
		m.logger.Warn("task blocked by failure", "task", dep.ID, "failed", resolved.ID)
	}

	m.engineers.Drop(t.EngineerID)
	if resolved.EngineerID != t.EngineerID {
		m.engineers.Drop(resolved.EngineerID)
	}

	if p.Phase != events.PhaseMergeConflict {
		// Conflict-resolution tasks (possibly nested) work in the root
		// task's worktree; the alias chain leads back to it.
		m.worktrees.Release(context.WithoutCancel(m.runCtx), m.sched.Resolve(t.ID))
	}

	m.recordOutcome(resolved, string(task.StatusFailed), p.Error)
	m.snapshot()
	m.checkSettled()
}

func (m *Manager) recordOutcome(t *task.Task, status, errMsg string) {
	m.mu.Lock()
	started, tracked := m.started[t.ID]
	m.mu.Unlock()
	var duration time.Duration
	if tracked {
		duration = time.Since(started)
	}
	if err := m.history.RecordTaskOutcome(m.runID, t.ID, t.Title, string(t.Type), status, duration, errMsg); err != nil {
		m.logger.Warn("record task outcome failed", "task", t.ID, "error", err)
	}
}

// snapshot overwrites the pipeline status file. Best-effort by design: the
// snapshot is a convention for external tools, never pipeline state.
func (m *Manager) snapshot() {
	if m.workspace == nil {
		return
	}
	if err := m.workspace.WriteSnapshot(m.runID, m.request, m.sched.Snapshot()); err != nil {
		m.logger.Debug("write snapshot failed", "error", err)
	}
}

// finalizeState writes the completion checklist and the last snapshot.
func (m *Manager) finalizeState() {
	if m.workspace == nil {
		return
	}
	if err := m.workspace.WriteCompletionStatus(m.sched.Snapshot()); err != nil {
		m.logger.Warn("write completion status failed", "error", err)
	}
	m.snapshot()
}
