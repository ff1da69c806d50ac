package review

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/titabash/kugutsu/internal/agent"
	"github.com/titabash/kugutsu/internal/logging"
	"github.com/titabash/kugutsu/internal/task"
)

// Config controls the review workflow.
type Config struct {
	// MaxTurns caps the TechLead's tool-use iterations.
	MaxTurns int

	// Model overrides the executor default when non-empty.
	Model string

	// DefaultVerdict applies when neither the explicit header nor the
	// keyword fallback matches. Historically APPROVED.
	DefaultVerdict task.Verdict
}

// Workflow performs one review attempt per call. Every attempt gets a fresh
// TechLead: reviewers are stateless across tasks so no context leaks between
// reviews.
type Workflow struct {
	executor agent.Executor
	cfg      Config
	logger   *logging.Logger
}

// NewWorkflow creates a review workflow over the given executor.
func NewWorkflow(executor agent.Executor, cfg Config, logger *logging.Logger) *Workflow {
	if cfg.DefaultVerdict == "" {
		cfg.DefaultVerdict = task.VerdictApproved
	}
	if logger == nil {
		logger = logging.New(nil, "TechLead", "")
	}
	return &Workflow{executor: executor, cfg: cfg, logger: logger}
}

// Review runs one TechLead pass over a developed task. Executor failure is
// not retried here; it surfaces as a VerdictError result for the pipeline to
// translate into a task failure.
func (w *Workflow) Review(ctx context.Context, t *task.Task, result *task.EngineerResult) *task.ReviewResult {
	reviewerID := "techlead-" + uuid.NewString()[:8]
	logger := w.logger.WithID(reviewerID)
	start := time.Now()

	review := &task.ReviewResult{
		TaskID:     t.ID,
		ReviewerID: reviewerID,
		Timestamp:  start,
	}

	res, err := w.executor.Execute(ctx, BuildPrompt(t, result), agent.ExecuteOptions{
		WorkingDirectory: t.WorktreePath,
		MaxTurns:         w.cfg.MaxTurns,
		AllowedTools:     agent.RoleTechLead.AllowedTools(),
		Model:            w.cfg.Model,
	})
	review.Duration = time.Since(start)

	if err != nil {
		review.Verdict = task.VerdictError
		review.Error = err.Error()
		logger.Error("review execution failed", "task", t.ID, "error", err)
		return review
	}
	if !res.Success {
		review.Verdict = task.VerdictError
		review.Error = res.ErrorMessage
		logger.Error("reviewer did not finish", "task", t.ID, "error", res.ErrorMessage)
		return review
	}

	text := res.AssistantText()
	review.Verdict = ParseVerdict(text, w.cfg.DefaultVerdict)
	if review.Verdict == task.VerdictChangesRequested {
		review.Comments = ExtractComments(text)
	}

	logger.Info("review complete",
		"task", t.ID,
		"verdict", string(review.Verdict),
		"comments", len(review.Comments),
		"duration", review.Duration.Round(time.Millisecond))
	return review
}
