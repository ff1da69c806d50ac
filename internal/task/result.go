package task

import (
	"time"

	"github.com/titabash/kugutsu/internal/agent"
)

// EngineerResult captures one development attempt.
type EngineerResult struct {
	TaskID     string `json:"task_id"`
	EngineerID string `json:"engineer_id"`
	Success    bool   `json:"success"`

	// Messages is the raw agent transcript.
	Messages []agent.Message `json:"messages,omitempty"`

	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	// ChangedFiles comes from git status in the worktree, not from the
	// transcript.
	ChangedFiles []string `json:"changed_files,omitempty"`

	// NeedsReReview is set when this result came from conflict resolution,
	// so the review stage does not short-circuit on prior approval.
	NeedsReReview bool `json:"needs_re_review,omitempty"`
}

// Verdict is a review outcome.
type Verdict string

const (
	VerdictApproved         Verdict = "APPROVED"
	VerdictChangesRequested Verdict = "CHANGES_REQUESTED"
	VerdictCommented        Verdict = "COMMENTED"
	VerdictError            Verdict = "ERROR"
)

// Approved reports whether the verdict lets the task proceed to merge.
// COMMENTED counts as approval with remarks.
func (v Verdict) Approved() bool {
	return v == VerdictApproved || v == VerdictCommented
}

// ReviewResult captures one review attempt.
type ReviewResult struct {
	TaskID     string        `json:"task_id"`
	Verdict    Verdict       `json:"verdict"`
	Comments   []string      `json:"comments,omitempty"`
	ReviewerID string        `json:"reviewer_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}
