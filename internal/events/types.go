// Package events provides the typed pub/sub bus connecting the pipeline
// stages. Dispatch is synchronous: Emit returns only after every listener
// has run.
package events

import (
	"fmt"
	"time"

	"github.com/titabash/kugutsu/internal/task"
)

// EventType identifies what happened.
type EventType string

const (
	// DevelopmentCompleted: an engineer returned success for a task
	DevelopmentCompleted EventType = "DEVELOPMENT_COMPLETED"

	// ReviewCompleted: the review workflow returned a verdict
	ReviewCompleted EventType = "REVIEW_COMPLETED"

	// MergeReady: review approved and the task is not yet merged
	MergeReady EventType = "MERGE_READY"

	// MergeConflictDetected: a merge attempt hit a conflict
	MergeConflictDetected EventType = "MERGE_CONFLICT_DETECTED"

	// MergeCompleted: the base branch now contains the task's changes
	MergeCompleted EventType = "MERGE_COMPLETED"

	// TaskFailed: terminal failure in some phase
	TaskFailed EventType = "TASK_FAILED"

	// DependencyResolved: a merge promoted dependents to ready
	DependencyResolved EventType = "DEPENDENCY_RESOLVED"
)

// Phase identifies which pipeline stage a failure occurred in.
type Phase string

const (
	PhaseDevelopment Phase = "development"
	PhaseReview      Phase = "review"
	PhaseMerge       Phase = "merge"

	// PhaseMergeConflict marks the terminal failure of a conflict-resolution
	// task. The worktree is kept for inspection in this case.
	PhaseMergeConflict Phase = "merge-conflict"
)

// Event is a single occurrence in the pipeline lifecycle.
type Event struct {
	// Time is when the event occurred (set by the bus on emit)
	Time time.Time `json:"time"`

	// Type identifies what happened
	Type EventType `json:"type"`

	// TaskID is the task this event relates to
	TaskID string `json:"task_id,omitempty"`

	// Payload carries event-specific data; its concrete type is determined
	// by Type (see the payload structs below)
	Payload any `json:"payload,omitempty"`
}

// String returns a human-readable representation of the event.
func (e Event) String() string {
	if e.TaskID == "" {
		return fmt.Sprintf("[%s]", e.Type)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.TaskID)
}

// DevelopmentCompletedPayload accompanies DevelopmentCompleted.
type DevelopmentCompletedPayload struct {
	Task       *task.Task
	Result     *task.EngineerResult
	EngineerID string
}

// ReviewCompletedPayload accompanies ReviewCompleted.
type ReviewCompletedPayload struct {
	Task   *task.Task
	Review *task.ReviewResult
	Result *task.EngineerResult

	// NeedsRevision is true iff the verdict was CHANGES_REQUESTED.
	NeedsRevision bool
}

// MergeReadyPayload accompanies MergeReady.
type MergeReadyPayload struct {
	Task       *task.Task
	Result     *task.EngineerResult
	Reviews    []task.ReviewResult
	EngineerID string
}

// MergeConflictPayload accompanies MergeConflictDetected.
type MergeConflictPayload struct {
	Task       *task.Task
	Result     *task.EngineerResult
	Reviews    []task.ReviewResult
	EngineerID string
}

// MergeCompletedPayload accompanies MergeCompleted.
type MergeCompletedPayload struct {
	Task    *task.Task
	Success bool
	Error   string
}

// TaskFailedPayload accompanies TaskFailed.
type TaskFailedPayload struct {
	Task  *task.Task
	Error string
	Phase Phase
}

// DependencyResolvedPayload accompanies DependencyResolved.
type DependencyResolvedPayload struct {
	MergedTaskID string
	NewlyReady   []*task.Task
}

// NewDevelopmentCompleted builds a DevelopmentCompleted event.
func NewDevelopmentCompleted(t *task.Task, result *task.EngineerResult, engineerID string) Event {
	return Event{
		Type:    DevelopmentCompleted,
		TaskID:  t.ID,
		Payload: &DevelopmentCompletedPayload{Task: t, Result: result, EngineerID: engineerID},
	}
}

// NewReviewCompleted builds a ReviewCompleted event.
func NewReviewCompleted(t *task.Task, review *task.ReviewResult, result *task.EngineerResult, needsRevision bool) Event {
	return Event{
		Type:    ReviewCompleted,
		TaskID:  t.ID,
		Payload: &ReviewCompletedPayload{Task: t, Review: review, Result: result, NeedsRevision: needsRevision},
	}
}

// NewMergeReady builds a MergeReady event.
func NewMergeReady(t *task.Task, result *task.EngineerResult, reviews []task.ReviewResult, engineerID string) Event {
	return Event{
		Type:    MergeReady,
		TaskID:  t.ID,
		Payload: &MergeReadyPayload{Task: t, Result: result, Reviews: reviews, EngineerID: engineerID},
	}
}

// NewMergeConflictDetected builds a MergeConflictDetected event.
func NewMergeConflictDetected(t *task.Task, result *task.EngineerResult, reviews []task.ReviewResult, engineerID string) Event {
	return Event{
		Type:    MergeConflictDetected,
		TaskID:  t.ID,
		Payload: &MergeConflictPayload{Task: t, Result: result, Reviews: reviews, EngineerID: engineerID},
	}
}

// NewMergeCompleted builds a MergeCompleted event.
func NewMergeCompleted(t *task.Task, success bool, mergeErr error) Event {
	p := &MergeCompletedPayload{Task: t, Success: success}
	if mergeErr != nil {
		p.Error = mergeErr.Error()
	}
	return Event{Type: MergeCompleted, TaskID: t.ID, Payload: p}
}

// NewTaskFailed builds a TaskFailed event.
func NewTaskFailed(t *task.Task, phase Phase, failure error) Event {
	p := &TaskFailedPayload{Task: t, Phase: phase}
	if failure != nil {
		p.Error = failure.Error()
	}
	return Event{Type: TaskFailed, TaskID: t.ID, Payload: p}
}

// NewDependencyResolved builds a DependencyResolved event.
func NewDependencyResolved(mergedTaskID string, newlyReady []*task.Task) Event {
	return Event{
		Type:    DependencyResolved,
		TaskID:  mergedTaskID,
		Payload: &DependencyResolvedPayload{MergedTaskID: mergedTaskID, NewlyReady: newlyReady},
	}
}
