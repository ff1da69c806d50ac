package scheduler

import (
	"testing"

	"github.com/titabash/kugutsu/internal/task"
)

func loadedManager(t *testing.T, tasks ...*task.Task) *Manager {
	t.Helper()
	m := NewManager()
	if err := m.Load(tasks); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return m
}

// advance walks a task through the full happy path up to merging.
func advance(m *Manager, taskID string) {
	m.MarkRunning(taskID)
	m.MarkDeveloped(taskID)
	m.MarkReviewing(taskID)
	m.MarkMerging(taskID)
}

func TestLoad_InitialStates(t *testing.T) {
	m := loadedManager(t,
		mkTask("a"),
		mkTask("b", "a"),
	)

	if got := m.Task("a").Status; got != task.StatusReady {
		t.Errorf("a status = %s, want ready", got)
	}
	if got := m.Task("b").Status; got != task.StatusWaiting {
		t.Errorf("b status = %s, want waiting", got)
	}

	ready := m.ReadyTasks()
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Errorf("ReadyTasks = %v, want [a]", ready)
	}
}

func TestLoad_DuplicateID(t *testing.T) {
	m := NewManager()
	err := m.Load([]*task.Task{mkTask("a"), mkTask("a")})
	if err == nil {
		t.Fatal("expected error for duplicate ID")
	}
}

func TestMarkMerged_PromotesDependents(t *testing.T) {
	m := loadedManager(t,
		mkTask("a"),
		mkTask("b", "a"),
		mkTask("c", "a", "b"),
	)

	advance(m, "a")
	promoted := m.MarkMerged("a")
	if len(promoted) != 1 || promoted[0].ID != "b" {
		t.Fatalf("promoted = %v, want [b]", promoted)
	}
	if m.Task("c").Status != task.StatusWaiting {
		t.Error("c should still wait for b")
	}

	advance(m, "b")
	promoted = m.MarkMerged("b")
	if len(promoted) != 1 || promoted[0].ID != "c" {
		t.Fatalf("promoted = %v, want [c]", promoted)
	}
	if m.Task("c").Status != task.StatusReady {
		t.Error("c should be ready after both dependencies merged")
	}
}

func TestMarkMerged_NoDependents(t *testing.T) {
	m := loadedManager(t, mkTask("a"))
	advance(m, "a")
	if promoted := m.MarkMerged("a"); len(promoted) != 0 {
		t.Errorf("promoted = %v, want empty", promoted)
	}
}

func TestMarkFailed_ReturnsTransitiveDependents(t *testing.T) {
	m := loadedManager(t,
		mkTask("a"),
		mkTask("b", "a"),
		mkTask("c", "b"),
		mkTask("d"),
	)

	m.MarkRunning("a")
	affected := m.MarkFailed("a")

	ids := make([]string, len(affected))
	for i, at := range affected {
		ids[i] = at.ID
	}
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Fatalf("affected = %v, want [b c]", ids)
	}

	// Dependents are not auto-failed; policy belongs to the caller.
	if m.Task("b").Status != task.StatusWaiting {
		t.Errorf("b status = %s, want waiting", m.Task("b").Status)
	}
	if m.Task("d").Status != task.StatusReady {
		t.Errorf("d status = %s, want ready", m.Task("d").Status)
	}
}

func TestIllegalTransitionPanics(t *testing.T) {
	m := loadedManager(t, mkTask("a"))

	defer func() {
		if recover() == nil {
			t.Error("expected panic on illegal transition")
		}
	}()
	// a is ready; developed requires running.
	m.MarkDeveloped("a")
}

func TestUnknownTaskPanics(t *testing.T) {
	m := loadedManager(t, mkTask("a"))

	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown task")
		}
	}()
	m.MarkRunning("ghost")
}

func TestMarkRevising_ReviewLoop(t *testing.T) {
	m := loadedManager(t, mkTask("a"))

	m.MarkRunning("a")
	m.MarkDeveloped("a")
	m.MarkReviewing("a")
	m.MarkRevising("a")
	if got := m.Task("a").Status; got != task.StatusRunning {
		t.Fatalf("status after revision = %s, want running", got)
	}

	// Second pass reaches merged.
	m.MarkDeveloped("a")
	m.MarkReviewing("a")
	m.MarkMerging("a")
	m.MarkMerged("a")
	if got := m.Task("a").Status; got != task.StatusMerged {
		t.Fatalf("status = %s, want merged", got)
	}
}

func TestAlias_ConflictTaskMarksOriginal(t *testing.T) {
	m := loadedManager(t,
		mkTask("a"),
		mkTask("b", "a"),
	)

	advance(m, "a")
	// A merge conflict forked a-conflict off a; its merge stands in for a's.
	m.Alias("a-conflict", "a")

	promoted := m.MarkMerged("a-conflict")
	if m.Task("a").Status != task.StatusMerged {
		t.Errorf("original status = %s, want merged", m.Task("a").Status)
	}
	if len(promoted) != 1 || promoted[0].ID != "b" {
		t.Errorf("promoted = %v, want [b]", promoted)
	}
}

func TestMarkConflictResolving_ReentersDevelopment(t *testing.T) {
	m := loadedManager(t, mkTask("a"))

	advance(m, "a")
	m.Alias("a-conflict", "a")

	// The conflict-resolution task re-enters development on a's behalf.
	m.MarkConflictResolving("a-conflict")
	if got := m.Task("a").Status; got != task.StatusRunning {
		t.Errorf("status = %s, want running", got)
	}

	m.MarkDeveloped("a-conflict")
	m.MarkReviewing("a-conflict")
	m.MarkMerging("a-conflict")
	m.MarkMerged("a-conflict")
	if got := m.Task("a").Status; got != task.StatusMerged {
		t.Errorf("status = %s, want merged", got)
	}
}

func TestDependencyStatus(t *testing.T) {
	m := loadedManager(t,
		mkTask("a"),
		mkTask("b"),
		mkTask("c"),
		mkTask("d", "a", "b", "c"),
	)

	advance(m, "a")
	m.MarkMerged("a")
	m.MarkRunning("b")
	m.MarkRunning("c")
	m.MarkFailed("c")

	status := m.DependencyStatus("d")
	if len(status.Blocking) != 0 {
		t.Errorf("Blocking = %v, want empty", status.Blocking)
	}
	if len(status.InProgress) != 1 || status.InProgress[0] != "b" {
		t.Errorf("InProgress = %v, want [b]", status.InProgress)
	}
	if len(status.Failed) != 1 || status.Failed[0] != "c" {
		t.Errorf("Failed = %v, want [c]", status.Failed)
	}
	if !status.Blocked() {
		t.Error("status should report blocked")
	}
}

func TestAllSettled_BlockedTasksCount(t *testing.T) {
	m := loadedManager(t,
		mkTask("a"),
		mkTask("b", "a"),
		mkTask("c", "b"),
	)

	if m.AllSettled() {
		t.Error("fresh pipeline should not be settled")
	}

	m.MarkRunning("a")
	m.MarkFailed("a")

	// b and c can never run; the pipeline has settled.
	if !m.AllSettled() {
		t.Error("pipeline with only blocked tasks should be settled")
	}

	blocked := m.BlockedTasks()
	if len(blocked) != 2 || blocked[0].ID != "b" || blocked[1].ID != "c" {
		t.Errorf("BlockedTasks = %v, want [b c]", blocked)
	}
}

func TestReadyImpliesAllDependenciesMerged(t *testing.T) {
	m := loadedManager(t,
		mkTask("a"),
		mkTask("b"),
		mkTask("c", "a", "b"),
	)

	advance(m, "a")
	m.MarkMerged("a")
	if m.Task("c").Status == task.StatusReady {
		t.Fatal("c became ready with b unmerged")
	}

	advance(m, "b")
	m.MarkMerged("b")
	if m.Task("c").Status != task.StatusReady {
		t.Fatal("c should be ready once a and b are merged")
	}
}

func TestSnapshot_CopiesUnderLock(t *testing.T) {
	m := loadedManager(t, mkTask("a"), mkTask("b", "a"))

	snap := m.Snapshot()
	if len(snap) != 2 || snap[0].ID != "a" || snap[1].ID != "b" {
		t.Fatalf("Snapshot = %v, want [a b]", snap)
	}

	// The copies are detached: advancing the live task must not show up in
	// an already-taken snapshot.
	advance(m, "a")
	if snap[0].Status != task.StatusReady {
		t.Errorf("snapshot status = %s, want the ready it was copied with", snap[0].Status)
	}
	if m.Snapshot()[0].Status != task.StatusMerging {
		t.Error("fresh snapshot should see the live status")
	}
}

func TestSnapshot_ConcurrentWithTransitions(t *testing.T) {
	m := loadedManager(t, mkTask("a"), mkTask("b"), mkTask("c"), mkTask("d"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, id := range []string{"a", "b", "c", "d"} {
			advance(m, id)
			m.MarkMerged(id)
		}
	}()
	for i := 0; i < 100; i++ {
		for _, c := range m.Snapshot() {
			_ = c.Status
			_ = c.Title
		}
	}
	<-done
}

func TestUpdate_MutatesUnderLock(t *testing.T) {
	m := loadedManager(t, mkTask("a"))

	if !m.Update("a", func(tk *task.Task) { tk.Title = "renamed" }) {
		t.Fatal("Update returned false for a loaded task")
	}
	if got := m.Task("a").Title; got != "renamed" {
		t.Errorf("title = %q, want renamed", got)
	}

	// Unknown IDs are not alias-resolved: the caller owns tasks the manager
	// does not track.
	m.Alias("a-conflict", "a")
	if m.Update("a-conflict", func(tk *task.Task) { tk.Title = "oops" }) {
		t.Error("Update should not resolve aliases to the original task")
	}
	if got := m.Task("a").Title; got != "renamed" {
		t.Errorf("title = %q, alias Update must not touch the original", got)
	}
}

func TestResolve_WalksNestedConflictChain(t *testing.T) {
	m := loadedManager(t, mkTask("a"))

	m.Alias("a-conflict", "a")
	m.Alias("a-conflict-conflict", "a-conflict")

	if got := m.Resolve("a-conflict-conflict"); got != "a" {
		t.Errorf("Resolve = %q, want a", got)
	}
	if got := m.Resolve("a"); got != "a" {
		t.Errorf("Resolve of a plain ID = %q, want itself", got)
	}
}
