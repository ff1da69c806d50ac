// Package task defines the unit of work flowing through the pipeline: the
// task itself, its lifecycle states, and the stage results attached to it as
// it moves from development through review to merge.
package task

import (
	"fmt"
	"strings"
)

// Type tags what kind of work a task is.
type Type string

const (
	TypeFeature            Type = "feature"
	TypeBugfix             Type = "bugfix"
	TypeRefactor           Type = "refactor"
	TypeTest               Type = "test"
	TypeDocs               Type = "docs"
	TypeConflictResolution Type = "conflict-resolution"
)

// Priority orders tasks within a stage queue.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight returns the numeric queue weight for the priority. Higher weights
// dequeue first.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 50
	case PriorityLow:
		return -50
	default:
		return 0
	}
}

// ParsePriority maps a string to a Priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// RevisionTitlePrefix marks a task re-admitted to development after a review
// requested changes.
const RevisionTitlePrefix = "[修正]"

// Task is one unit of work. Created once by the planner, owned by the
// pipeline manager for its entire journey.
type Task struct {
	// ID is stable across requeues and revisions.
	ID string `json:"id"`

	Type        Type     `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`

	// Dependencies lists task IDs that must be merged before this task may
	// start.
	Dependencies []string `json:"dependencies,omitempty"`

	// Status is the lifecycle state. Mutated only by the dependency manager.
	Status Status `json:"status"`

	// BranchName and WorktreePath are set exactly once, by the worktree
	// manager via the caller.
	BranchName   string `json:"branch_name,omitempty"`
	WorktreePath string `json:"worktree_path,omitempty"`

	// Conflict-resolution linkage. Set only when Type is
	// TypeConflictResolution.
	OriginalTaskID string          `json:"original_task_id,omitempty"`
	PriorResult    *EngineerResult `json:"prior_result,omitempty"`
	PriorReviews   []ReviewResult  `json:"prior_reviews,omitempty"`
	EngineerID     string          `json:"engineer_id,omitempty"`
}

// IsConflictResolution reports whether the task was synthesized to resolve a
// merge conflict.
func (t *Task) IsConflictResolution() bool {
	return t.Type == TypeConflictResolution
}

// IsRevision reports whether the task was re-admitted after a review
// requested changes.
func (t *Task) IsRevision() bool {
	return strings.HasPrefix(t.Title, RevisionTitlePrefix)
}

// Validate checks structural invariants on a freshly planned task.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task has no ID")
	}
	if t.Title == "" {
		return fmt.Errorf("task %s has no title", t.ID)
	}
	if t.Type == TypeConflictResolution && t.OriginalTaskID == "" {
		return fmt.Errorf("conflict-resolution task %s has no original task", t.ID)
	}
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("task %s depends on itself", t.ID)
		}
	}
	return nil
}

// NewConflictResolution synthesizes the task that re-runs an engineer on a
// worktree that collided with a newly merged base branch. It reuses the
// original's worktree and branch but never its agent session: EngineerID is
// left empty so the development stage starts fresh.
func NewConflictResolution(original *Task, result *EngineerResult, reviews []ReviewResult) *Task {
	return &Task{
		ID:       original.ID + "-conflict",
		Type:     TypeConflictResolution,
		Title:    "コンフリクト解消: " + original.Title,
		Priority: PriorityHigh,
		Description: fmt.Sprintf(
			"ブランチ %s をベースブランチにマージした際にコンフリクトが発生しました。\n"+
				"ワークツリー内のコンフリクトを解消し、すべての変更をコミットしてください。\n\n"+
				"元タスク: %s\n%s",
			original.BranchName, original.Title, original.Description),
		Status:         StatusReady,
		BranchName:     original.BranchName,
		WorktreePath:   original.WorktreePath,
		OriginalTaskID: original.ID,
		PriorResult:    result,
		PriorReviews:   reviews,
	}
}
