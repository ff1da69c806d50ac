package events

import "github.com/titabash/kugutsu/internal/logging"

// LogHandler returns a handler that writes every event through the logger.
// Failure events log at error level, everything else at info.
func LogHandler(logger *logging.Logger) Handler {
	return func(e Event) {
		kv := []any{"event", string(e.Type)}
		if e.TaskID != "" {
			kv = append(kv, "task", e.TaskID)
		}

		switch p := e.Payload.(type) {
		case *DevelopmentCompletedPayload:
			kv = append(kv, "title", p.Task.Title, "engineer", p.EngineerID)
		case *ReviewCompletedPayload:
			if p.Review != nil {
				kv = append(kv, "verdict", string(p.Review.Verdict))
			}
			kv = append(kv, "needs_revision", p.NeedsRevision)
		case *MergeReadyPayload:
			kv = append(kv, "branch", p.Task.BranchName)
		case *MergeConflictPayload:
			kv = append(kv, "branch", p.Task.BranchName)
		case *MergeCompletedPayload:
			kv = append(kv, "success", p.Success)
			if p.Error != "" {
				kv = append(kv, "error", p.Error)
			}
		case *TaskFailedPayload:
			kv = append(kv, "phase", string(p.Phase), "error", p.Error)
		case *DependencyResolvedPayload:
			kv = append(kv, "newly_ready", len(p.NewlyReady))
		}

		if e.Type == TaskFailed {
			logger.Error(e.String(), kv...)
			return
		}
		logger.Info(e.String(), kv...)
	}
}
