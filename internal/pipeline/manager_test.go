package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/titabash/kugutsu/internal/agent"
	"github.com/titabash/kugutsu/internal/config"
	"github.com/titabash/kugutsu/internal/events"
	"github.com/titabash/kugutsu/internal/metrics"
	"github.com/titabash/kugutsu/internal/state"
	"github.com/titabash/kugutsu/internal/task"
)

func testConfig(t *testing.T, engineers int) *config.Config {
	t.Helper()
	repo := t.TempDir()
	return &config.Config{
		BaseRepo:     repo,
		BaseBranch:   "main",
		WorktreeBase: filepath.Join(repo, ".kugutsu", "worktrees"),
		MaxEngineers: engineers,
		Agent:        config.AgentConfig{Mode: config.AgentModeCLI, Command: "claude", MaxTurns: 10},
		Retry:        config.RetryConfig{Development: 3, Review: 5},
		Review:       config.ReviewConfig{DefaultVerdict: "APPROVED"},
	}
}

// execCall records one executor invocation.
type execCall struct {
	prompt string
	opts   agent.ExecuteOptions
}

// scriptedExecutor routes engineer and reviewer invocations to separate
// scripts and records every call.
type scriptedExecutor struct {
	mu       sync.Mutex
	calls    []execCall
	engineer func(prompt string, opts agent.ExecuteOptions) (*agent.Result, error)
	reviewer func(prompt string, opts agent.ExecuteOptions) (*agent.Result, error)
}

func isReviewPrompt(p string) bool { return strings.Contains(p, "テックリード") }

func (s *scriptedExecutor) Execute(ctx context.Context, prompt string, opts agent.ExecuteOptions) (*agent.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, execCall{prompt: prompt, opts: opts})
	s.mu.Unlock()
	if isReviewPrompt(prompt) {
		return s.reviewer(prompt, opts)
	}
	return s.engineer(prompt, opts)
}

func (s *scriptedExecutor) engineerCalls() []execCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []execCall
	for _, c := range s.calls {
		if !isReviewPrompt(c.prompt) {
			out = append(out, c)
		}
	}
	return out
}

func (s *scriptedExecutor) reviewerCalls() []execCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []execCall
	for _, c := range s.calls {
		if isReviewPrompt(c.prompt) {
			out = append(out, c)
		}
	}
	return out
}

func assistantText(text string) []agent.Message {
	return []agent.Message{{Kind: agent.MessageAssistantText, Text: text}}
}

// workingEngineer simulates an agent that edits a file in its worktree and
// finishes cleanly.
func workingEngineer(fake *fakeGit) func(string, agent.ExecuteOptions) (*agent.Result, error) {
	var n int
	var mu sync.Mutex
	return func(_ string, opts agent.ExecuteOptions) (*agent.Result, error) {
		mu.Lock()
		n++
		session := n
		mu.Unlock()
		fake.SetChanges(opts.WorkingDirectory, " M main.go\n")
		return &agent.Result{
			Success:   true,
			SessionID: "sess-" + strings.Repeat("x", session),
			Messages:  assistantText("実装しました"),
		}, nil
	}
}

func approvingReviewer(string, agent.ExecuteOptions) (*agent.Result, error) {
	return &agent.Result{Success: true, Messages: assistantText("レビュー結果: APPROVED")}, nil
}

func newTestManager(t *testing.T, cfg *config.Config, exec agent.Executor) (*Manager, *events.EventCollector) {
	t.Helper()
	bus := events.NewBus()
	collector := events.NewEventCollector(bus)
	m, err := NewManager(context.Background(), cfg, exec, bus, metrics.New(), nil)
	require.NoError(t, err)
	return m, collector
}

func eventFor(collector *events.EventCollector, kind events.EventType, taskID string) int {
	for i, e := range collector.Get() {
		if e.Type == kind && e.TaskID == taskID {
			return i
		}
	}
	return -1
}

func TestRun_TwoIndependentTasks(t *testing.T) {
	fake := useFakeGit(t)
	exec := &scriptedExecutor{engineer: workingEngineer(fake), reviewer: approvingReviewer}
	cfg := testConfig(t, 2)
	m, collector := newTestManager(t, cfg, exec)

	tasks := []*task.Task{
		{ID: "a", Type: task.TypeFeature, Title: "add README", Priority: task.PriorityMedium},
		{ID: "b", Type: task.TypeFeature, Title: "add LICENSE", Priority: task.PriorityMedium},
	}
	summary, err := m.Run(context.Background(), "ドキュメント整備", tasks)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Merged)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Blocked)
	assert.Equal(t, 0, summary.ExitCode())

	merged := fake.MergedBranches()
	assert.ElementsMatch(t, []string{"feature/task-a", "feature/task-b"}, merged)
	assert.Len(t, eventsOf(collector, events.MergeCompleted), 2)

	// One engineer and one reviewer invocation per task.
	assert.Len(t, exec.engineerCalls(), 2)
	assert.Len(t, exec.reviewerCalls(), 2)

	// The snapshot reflects the final state.
	snap, err := state.ReadSnapshot(filepath.Join(cfg.BaseRepo, ".kugutsu", "pipeline-status.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Counts["merged"])
}

func TestRun_DependencyOrdering(t *testing.T) {
	fake := useFakeGit(t)
	exec := &scriptedExecutor{engineer: workingEngineer(fake), reviewer: approvingReviewer}
	cfg := testConfig(t, 2)
	m, collector := newTestManager(t, cfg, exec)

	tasks := []*task.Task{
		{ID: "a", Type: task.TypeFeature, Title: "model", Priority: task.PriorityMedium},
		{ID: "b", Type: task.TypeTest, Title: "model tests", Priority: task.PriorityMedium, Dependencies: []string{"a"}},
	}
	summary, err := m.Run(context.Background(), "モデルとテスト", tasks)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Merged)

	// B's development must start only after A's merge completed. Bus
	// dispatch is synchronous, so collector order is emission order.
	aMerged := eventFor(collector, events.MergeCompleted, "a")
	bDeveloped := eventFor(collector, events.DevelopmentCompleted, "b")
	require.NotEqual(t, -1, aMerged)
	require.NotEqual(t, -1, bDeveloped)
	assert.Less(t, aMerged, bDeveloped, "b developed before a merged")

	assert.Equal(t, []string{"feature/task-a", "feature/task-b"}, fake.MergedBranches())
}

func TestRun_ReviewRevisionReusesSession(t *testing.T) {
	fake := useFakeGit(t)

	var reviewCount int
	var mu sync.Mutex
	exec := &scriptedExecutor{
		engineer: func(_ string, opts agent.ExecuteOptions) (*agent.Result, error) {
			fake.SetChanges(opts.WorkingDirectory, " M main.go\n")
			return &agent.Result{Success: true, SessionID: "sess-a", Messages: assistantText("done")}, nil
		},
		reviewer: func(string, agent.ExecuteOptions) (*agent.Result, error) {
			mu.Lock()
			reviewCount++
			first := reviewCount == 1
			mu.Unlock()
			if first {
				return &agent.Result{Success: true,
					Messages: assistantText("レビュー結果: CHANGES_REQUESTED\n- Add test")}, nil
			}
			return &agent.Result{Success: true, Messages: assistantText("レビュー結果: APPROVED")}, nil
		},
	}
	cfg := testConfig(t, 1)
	m, collector := newTestManager(t, cfg, exec)

	tasks := []*task.Task{{ID: "a", Type: task.TypeFeature, Title: "feature", Priority: task.PriorityMedium}}
	summary, err := m.Run(context.Background(), "機能追加", tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Merged)

	engineers := exec.engineerCalls()
	require.Len(t, engineers, 2, "engineer runs once plus one revision")
	require.Len(t, exec.reviewerCalls(), 2)

	// The revision resumes the original engineer session and carries the
	// review comment with the revision title prefix.
	assert.Empty(t, engineers[0].opts.ResumeHandle)
	assert.Equal(t, "sess-a", engineers[1].opts.ResumeHandle)
	assert.Contains(t, engineers[1].prompt, task.RevisionTitlePrefix)
	assert.Contains(t, engineers[1].prompt, "Add test")

	// Exactly one merge, after the second review.
	assert.Equal(t, 1, len(eventsOf(collector, events.MergeCompleted)))
}

func TestRun_MergeConflictResolution(t *testing.T) {
	fake := useFakeGit(t)
	exec := &scriptedExecutor{engineer: workingEngineer(fake), reviewer: approvingReviewer}
	cfg := testConfig(t, 1)
	m, collector := newTestManager(t, cfg, exec)

	// B's first merge of the base into its worktree conflicts.
	fake.ConflictOnce(filepath.Join(cfg.WorktreeBase, "task-b"))

	tasks := []*task.Task{
		{ID: "a", Type: task.TypeFeature, Title: "edit shared", Priority: task.PriorityMedium},
		{ID: "b", Type: task.TypeFeature, Title: "edit shared too", Priority: task.PriorityMedium},
	}
	summary, err := m.Run(context.Background(), "共有ファイル編集", tasks)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Merged)
	assert.Equal(t, 0, summary.Failed)

	require.NotEqual(t, -1, eventFor(collector, events.MergeConflictDetected, "b"))
	require.NotEqual(t, -1, eventFor(collector, events.DevelopmentCompleted, "b-conflict"))

	// The conflict resolution runs with a fresh session in the original
	// worktree, and its result is re-reviewed.
	var conflictCall *execCall
	for i, c := range exec.engineerCalls() {
		if strings.Contains(c.prompt, "コンフリクト") {
			call := exec.engineerCalls()[i]
			conflictCall = &call
		}
	}
	require.NotNil(t, conflictCall, "conflict-resolution engineer never ran")
	assert.Empty(t, conflictCall.opts.ResumeHandle)
	assert.Equal(t, filepath.Join(cfg.WorktreeBase, "task-b"), conflictCall.opts.WorkingDirectory)
	assert.Len(t, exec.reviewerCalls(), 3, "conflict result must be re-reviewed")

	// Exactly one integration per original task.
	assert.Len(t, fake.MergedBranches(), 2)
}

func TestRun_ParallelRevisions(t *testing.T) {
	fake := useFakeGit(t)

	// Every task gets one CHANGES_REQUESTED round before approval, so four
	// engineers revise concurrently while each transition rewrites the status
	// snapshot.
	var mu sync.Mutex
	rounds := make(map[string]int)
	exec := &scriptedExecutor{
		engineer: workingEngineer(fake),
		reviewer: func(_ string, opts agent.ExecuteOptions) (*agent.Result, error) {
			mu.Lock()
			rounds[opts.WorkingDirectory]++
			first := rounds[opts.WorkingDirectory] == 1
			mu.Unlock()
			if first {
				return &agent.Result{Success: true,
					Messages: assistantText("レビュー結果: CHANGES_REQUESTED\n- Tighten error handling")}, nil
			}
			return &agent.Result{Success: true, Messages: assistantText("レビュー結果: APPROVED")}, nil
		},
	}
	cfg := testConfig(t, 4)
	m, _ := newTestManager(t, cfg, exec)

	tasks := []*task.Task{
		{ID: "a", Type: task.TypeFeature, Title: "認証", Priority: task.PriorityMedium},
		{ID: "b", Type: task.TypeFeature, Title: "権限", Priority: task.PriorityMedium},
		{ID: "c", Type: task.TypeFeature, Title: "監査ログ", Priority: task.PriorityMedium},
		{ID: "d", Type: task.TypeFeature, Title: "通知", Priority: task.PriorityMedium},
	}
	summary, err := m.Run(context.Background(), "並行開発", tasks)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Merged)
	assert.Equal(t, 0, summary.Failed)
	assert.Len(t, exec.engineerCalls(), 8, "initial run plus one revision per task")
	assert.Len(t, exec.reviewerCalls(), 8)

	// Each task picked up the revision title exactly once.
	snap, err := state.ReadSnapshot(filepath.Join(cfg.BaseRepo, ".kugutsu", "pipeline-status.json"))
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Counts["merged"])
	for _, ts := range snap.Tasks {
		assert.Equal(t, 1, strings.Count(ts.Title, task.RevisionTitlePrefix), "title %q", ts.Title)
	}
}

func TestRun_NestedConflictResolutionCleansUp(t *testing.T) {
	fake := useFakeGit(t)
	exec := &scriptedExecutor{engineer: workingEngineer(fake), reviewer: approvingReviewer}
	cfg := testConfig(t, 1)
	m, collector := newTestManager(t, cfg, exec)

	// A's worktree conflicts twice in a row, so the first conflict-resolution
	// task itself hits a conflict and spawns a second-level resolution.
	dir := filepath.Join(cfg.WorktreeBase, "task-a")
	fake.ConflictOnce(dir)
	fake.ConflictOnce(dir)

	tasks := []*task.Task{
		{ID: "a", Type: task.TypeFeature, Title: "edit shared", Priority: task.PriorityMedium},
	}
	summary, err := m.Run(context.Background(), "多段コンフリクト", tasks)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Merged)
	assert.Equal(t, 0, summary.Failed)

	require.NotEqual(t, -1, eventFor(collector, events.DevelopmentCompleted, "a-conflict"))
	require.NotEqual(t, -1, eventFor(collector, events.DevelopmentCompleted, "a-conflict-conflict"))

	// The nested resolution worked in a's worktree; merging it must release
	// that worktree and delete a's branch, not look for resources named after
	// the intermediate resolution task.
	assert.Empty(t, fake.Worktrees(), "worktree leaked after nested conflict resolution")
	assert.NotContains(t, fake.Branches(), "feature/task-a")
}

func TestRun_DevelopmentFailureBlocksDependents(t *testing.T) {
	useFakeGit(t)
	exec := &scriptedExecutor{
		engineer: func(string, agent.ExecuteOptions) (*agent.Result, error) {
			return nil, errors.New("agent crashed")
		},
		reviewer: approvingReviewer,
	}
	cfg := testConfig(t, 1)
	m, collector := newTestManager(t, cfg, exec)

	tasks := []*task.Task{
		{ID: "a", Type: task.TypeFeature, Title: "base work", Priority: task.PriorityMedium},
		{ID: "b", Type: task.TypeFeature, Title: "dependent work", Priority: task.PriorityMedium, Dependencies: []string{"a"}},
	}
	summary, err := m.Run(context.Background(), "失敗ケース", tasks)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Merged)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, summary.ExitCode())

	// Initial attempt plus three retries.
	assert.Len(t, exec.engineerCalls(), 4)

	failed := eventsOf(collector, events.TaskFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, events.PhaseDevelopment, failed[0].Payload.(*events.TaskFailedPayload).Phase)

	assert.Contains(t, summary.Report, "dependent work")
	assert.Contains(t, summary.Report, "ブロック")
}

func TestRun_CycleRejected(t *testing.T) {
	useFakeGit(t)
	exec := &scriptedExecutor{engineer: approvingReviewer, reviewer: approvingReviewer}
	cfg := testConfig(t, 1)
	m, _ := newTestManager(t, cfg, exec)

	tasks := []*task.Task{
		{ID: "a", Type: task.TypeFeature, Title: "a", Priority: task.PriorityMedium, Dependencies: []string{"b"}},
		{ID: "b", Type: task.TypeFeature, Title: "b", Priority: task.PriorityMedium, Dependencies: []string{"a"}},
	}
	_, err := m.Run(context.Background(), "循環", tasks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular dependency")
}

func TestRun_ShutdownDuringReview(t *testing.T) {
	fake := useFakeGit(t)
	reviewStarted := make(chan struct{})
	exec := &scriptedExecutor{
		engineer: workingEngineer(fake),
		reviewer: func(_ string, opts agent.ExecuteOptions) (*agent.Result, error) {
			close(reviewStarted)
			return nil, context.Canceled
		},
	}
	cfg := testConfig(t, 1)
	m, collector := newTestManager(t, cfg, exec)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-reviewStarted
		cancel()
	}()

	tasks := []*task.Task{{ID: "a", Type: task.TypeFeature, Title: "feature", Priority: task.PriorityMedium}}
	summary, _ := m.Run(ctx, "中断", tasks)
	require.NotNil(t, summary)

	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, eventsOf(collector, events.MergeCompleted), "no merge may run after shutdown")
}

func eventsOf(collector *events.EventCollector, kind events.EventType) []events.Event {
	var out []events.Event
	for _, e := range collector.Get() {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}
