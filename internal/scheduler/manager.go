package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/titabash/kugutsu/internal/task"
)

// Manager tracks the DAG and per-task lifecycle state. The Mark* transitions
// are strict: calling one from the wrong state is a programming error and
// panics instead of limping on with a corrupt pipeline.
type Manager struct {
	mu    sync.Mutex
	graph *Graph
	tasks map[string]*task.Task

	// aliases maps a conflict-resolution task ID to the original task it
	// stands in for. Marking the alias marks the original.
	aliases map[string]string
}

// NewManager creates an empty manager. Call Load before anything else.
func NewManager() *Manager {
	return &Manager{
		tasks:   make(map[string]*task.Task),
		aliases: make(map[string]string),
	}
}

// Load builds the DAG from the planned tasks. Zero-dependency tasks enter
// ready; all others enter waiting. Fails on duplicate IDs, missing
// dependencies, and cycles.
func (m *Manager) Load(tasks []*task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, dup := m.tasks[t.ID]; dup {
			return fmt.Errorf("duplicate task ID %q", t.ID)
		}
		m.tasks[t.ID] = t
	}

	graph, err := NewGraph(tasks)
	if err != nil {
		m.tasks = make(map[string]*task.Task)
		return err
	}
	m.graph = graph

	for _, t := range tasks {
		if len(t.Dependencies) == 0 {
			t.Status = task.StatusReady
		} else {
			t.Status = task.StatusWaiting
		}
	}
	return nil
}

// Task returns the task for the given ID, or nil.
func (m *Manager) Task(taskID string) *task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[m.resolve(taskID)]
}

// Tasks returns every loaded task, sorted by ID.
func (m *Manager) Tasks() []*task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns value copies of every loaded task, sorted by ID. The
// copies are taken under the lock, so callers can read them while workers
// keep mutating the live tasks.
func (m *Manager) Snapshot() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Update applies fn to the task under the lock, so the mutation cannot race
// with Snapshot. The ID is not alias-resolved: conflict-resolution tasks live
// outside the manager, and a false return tells the caller the task is not
// managed here and can be mutated directly.
func (m *Manager) Update(taskID string, fn func(*task.Task)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return false
	}
	fn(t)
	return true
}

// Resolve follows the conflict-alias chain to the root task ID. IDs without
// an alias entry resolve to themselves.
func (m *Manager) Resolve(taskID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolve(taskID)
}

// ReadyTasks returns all tasks currently in ready, sorted by ID.
func (m *Manager) ReadyTasks() []*task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ready []*task.Task
	for _, t := range m.tasks {
		if t.Status == task.StatusReady {
			ready = append(ready, t)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	return ready
}

// Alias registers a conflict-resolution task as standing in for the original.
// Every Mark* call on the alias ID resolves to the original task, so the
// conflict task reaching merged implies the original's merged and readiness
// propagates from the original's dependents.
func (m *Manager) Alias(conflictID, originalID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[conflictID] = originalID
}

// resolve follows the alias chain. Called with the lock held.
func (m *Manager) resolve(taskID string) string {
	for {
		original, ok := m.aliases[taskID]
		if !ok {
			return taskID
		}
		taskID = original
	}
}

// transition moves a task from exactly one legal predecessor state.
// Called with the lock held.
func (m *Manager) transition(taskID string, from, to task.Status) *task.Task {
	t, ok := m.tasks[taskID]
	if !ok {
		panic(fmt.Sprintf("scheduler: unknown task %q", taskID))
	}
	if t.Status != from {
		panic(fmt.Sprintf("scheduler: task %s is %s, cannot transition %s -> %s",
			taskID, t.Status, from, to))
	}
	t.Status = to
	return t
}

// MarkRunning moves a task from ready to running.
func (m *Manager) MarkRunning(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(m.resolve(taskID), task.StatusReady, task.StatusRunning)
}

// MarkDeveloped moves a task from running to developed.
func (m *Manager) MarkDeveloped(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(m.resolve(taskID), task.StatusRunning, task.StatusDeveloped)
}

// MarkReviewing moves a task from developed to reviewing.
func (m *Manager) MarkReviewing(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(m.resolve(taskID), task.StatusDeveloped, task.StatusReviewing)
}

// MarkRevising moves a task from reviewing back to running after a review
// requested changes.
func (m *Manager) MarkRevising(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(m.resolve(taskID), task.StatusReviewing, task.StatusRunning)
}

// MarkConflictResolving moves a task from merging back to running after a
// merge attempt hit a conflict and a conflict-resolution task re-entered
// development on its behalf.
func (m *Manager) MarkConflictResolving(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(m.resolve(taskID), task.StatusMerging, task.StatusRunning)
}

// MarkMerging moves a task from reviewing to merging.
func (m *Manager) MarkMerging(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(m.resolve(taskID), task.StatusReviewing, task.StatusMerging)
}

// MarkMerged moves a task to merged and promotes every dependent whose
// dependencies are now all merged from waiting to ready. Returns the promoted
// set sorted by ID, possibly empty.
func (m *Manager) MarkMerged(taskID string) []*task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.resolve(taskID)
	m.transition(id, task.StatusMerging, task.StatusMerged)

	var promoted []*task.Task
	for _, depID := range m.graph.Dependents(id) {
		dependent := m.tasks[depID]
		if dependent.Status != task.StatusWaiting {
			continue
		}
		if m.allDependenciesMerged(depID) {
			dependent.Status = task.StatusReady
			promoted = append(promoted, dependent)
		}
	}
	sort.Slice(promoted, func(i, j int) bool { return promoted[i].ID < promoted[j].ID })
	return promoted
}

// allDependenciesMerged is called with the lock held.
func (m *Manager) allDependenciesMerged(taskID string) bool {
	for _, depID := range m.graph.Dependencies(taskID) {
		if m.tasks[depID].Status != task.StatusMerged {
			return false
		}
	}
	return true
}

// MarkFailed moves a task to failed from whatever non-terminal state it is in
// and returns the transitive dependents now unreachable. Dependents are NOT
// failed here; they stay waiting and the caller decides policy.
func (m *Manager) MarkFailed(taskID string) []*task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.resolve(taskID)
	t, ok := m.tasks[id]
	if !ok {
		panic(fmt.Sprintf("scheduler: unknown task %q", taskID))
	}
	if t.Status.IsTerminal() {
		panic(fmt.Sprintf("scheduler: task %s already terminal (%s)", id, t.Status))
	}
	t.Status = task.StatusFailed

	var affected []*task.Task
	for _, depID := range m.graph.TransitiveDependents(id) {
		affected = append(affected, m.tasks[depID])
	}
	return affected
}

// DependencyStatus describes why a task is not yet ready.
type DependencyStatus struct {
	// Blocking dependencies have not started or are mid-pipeline.
	Blocking []string

	// InProgress dependencies are past ready but not yet merged.
	InProgress []string

	// Failed dependencies make the task permanently unreachable.
	Failed []string
}

// Blocked reports whether a failed dependency makes the task unreachable.
func (s DependencyStatus) Blocked() bool {
	return len(s.Failed) > 0
}

// DependencyStatus returns the diagnostic breakdown of a task's
// dependencies.
func (m *Manager) DependencyStatus(taskID string) DependencyStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var status DependencyStatus
	for _, depID := range m.graph.Dependencies(m.resolve(taskID)) {
		dep := m.tasks[depID]
		switch {
		case dep.Status == task.StatusFailed:
			status.Failed = append(status.Failed, depID)
		case dep.Status == task.StatusMerged:
			// Satisfied.
		case dep.Status.IsActive():
			status.InProgress = append(status.InProgress, depID)
		default:
			status.Blocking = append(status.Blocking, depID)
		}
	}
	return status
}

// Counts tallies tasks by status.
func (m *Manager) Counts() map[task.Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[task.Status]int)
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	return counts
}

// AllSettled reports whether every task is merged, failed, or permanently
// blocked by a failed dependency. Blocked tasks never leave waiting, so the
// pipeline is done when nothing else can move.
func (m *Manager) AllSettled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tasks {
		switch t.Status {
		case task.StatusMerged, task.StatusFailed:
		case task.StatusWaiting:
			if !m.blockedByFailure(t.ID) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// BlockedTasks returns waiting tasks that can never become ready because a
// transitive dependency failed, sorted by ID.
func (m *Manager) BlockedTasks() []*task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var blocked []*task.Task
	for _, t := range m.tasks {
		if t.Status == task.StatusWaiting && m.blockedByFailure(t.ID) {
			blocked = append(blocked, t)
		}
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].ID < blocked[j].ID })
	return blocked
}

// blockedByFailure is called with the lock held.
func (m *Manager) blockedByFailure(taskID string) bool {
	for _, depID := range m.graph.Dependencies(taskID) {
		dep := m.tasks[depID]
		if dep.Status == task.StatusFailed {
			return true
		}
		if dep.Status == task.StatusWaiting && m.blockedByFailure(depID) {
			return true
		}
	}
	return false
}
