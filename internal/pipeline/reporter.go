package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/titabash/kugutsu/internal/events"
	"github.com/titabash/kugutsu/internal/scheduler"
	"github.com/titabash/kugutsu/internal/task"
)

// Reporter tracks per-task outcomes and renders the final run report.
type Reporter struct {
	mu     sync.Mutex
	start  time.Time
	merged []string
	failed map[string]failure
}

type failure struct {
	phase events.Phase
	err   string
}

func newReporter() *Reporter {
	return &Reporter{
		start:  time.Now(),
		failed: make(map[string]failure),
	}
}

// TaskMerged records a merge in completion order.
func (r *Reporter) TaskMerged(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.merged = append(r.merged, taskID)
}

// TaskFailed records a terminal failure with its phase.
func (r *Reporter) TaskFailed(taskID string, phase events.Phase, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[taskID] = failure{phase: phase, err: errMsg}
}

// MergedCount returns how many tasks merged so far.
func (r *Reporter) MergedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.merged)
}

// FailedCount returns how many tasks failed terminally.
func (r *Reporter) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed)
}

var (
	okMark   = color.New(color.FgGreen).SprintFunc()
	failMark = color.New(color.FgRed).SprintFunc()
	dimText  = color.New(color.Faint).SprintFunc()
)

// Report renders the final human-readable summary. Blocked tasks are waiting
// tasks that can never become ready because a dependency failed.
func (r *Reporter) Report(sched *scheduler.Manager) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	elapsed := time.Since(r.start).Round(time.Second)
	blocked := sched.BlockedTasks()

	fmt.Fprintf(&b, "\n== 実行結果 (%s) ==\n", elapsed)

	byID := make(map[string]*task.Task)
	for _, t := range sched.Tasks() {
		byID[t.ID] = t
	}

	for _, id := range r.merged {
		title := id
		if t := byID[id]; t != nil {
			title = t.Title
		}
		fmt.Fprintf(&b, "  %s %s (%s)\n", okMark("✓"), title, id)
	}

	failedIDs := make([]string, 0, len(r.failed))
	for id := range r.failed {
		failedIDs = append(failedIDs, id)
	}
	sort.Strings(failedIDs)
	for _, id := range failedIDs {
		f := r.failed[id]
		title := id
		if t := byID[id]; t != nil {
			title = t.Title
		}
		fmt.Fprintf(&b, "  %s %s (%s) - %s: %s\n", failMark("✗"), title, id, f.phase, f.err)
	}

	for _, t := range blocked {
		fmt.Fprintf(&b, "  %s %s (%s) - 依存タスクの失敗によりブロック\n", dimText("-"), t.Title, t.ID)
	}

	fmt.Fprintf(&b, "\nマージ済み: %d / 失敗: %d / ブロック: %d\n",
		len(r.merged), len(r.failed), len(blocked))
	return b.String()
}
