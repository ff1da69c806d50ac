package task

// Status represents the task's lifecycle state
type Status string

const (
	// StatusWaiting means some dependency is not yet merged
	StatusWaiting Status = "waiting"
	// StatusReady means all dependencies are merged, development not started
	StatusReady Status = "ready"
	// StatusRunning means the task is in development
	StatusRunning Status = "running"
	// StatusDeveloped means development succeeded, review not started
	StatusDeveloped Status = "developed"
	// StatusReviewing means a review is in progress
	StatusReviewing Status = "reviewing"
	// StatusMerging means the task is queued for or undergoing merge
	StatusMerging Status = "merging"
	// StatusMerged is terminal: the base branch contains the task's changes
	StatusMerged Status = "merged"
	// StatusFailed is terminal
	StatusFailed Status = "failed"
)

// ValidTransitions defines allowed state transitions.
// waiting -> ready -> running -> developed -> reviewing -> merging -> merged
// A review that requests changes sends the task back to running, and so does
// a merge conflict (the conflict-resolution task re-enters development on the
// original's behalf); any stage may fail. Development retries requeue without
// leaving running.
var ValidTransitions = map[Status][]Status{
	StatusWaiting:   {StatusReady, StatusFailed},
	StatusReady:     {StatusRunning, StatusFailed},
	StatusRunning:   {StatusDeveloped, StatusFailed},
	StatusDeveloped: {StatusReviewing, StatusFailed},
	StatusReviewing: {StatusRunning, StatusMerging, StatusFailed},
	StatusMerging:   {StatusRunning, StatusMerged, StatusFailed},
	StatusMerged:    {},
	StatusFailed:    {},
}

// IsTerminal returns true if the status is a final state
func (s Status) IsTerminal() bool {
	return s == StatusMerged || s == StatusFailed
}

// IsActive returns true if the task is consuming a pipeline slot
func (s Status) IsActive() bool {
	switch s {
	case StatusRunning, StatusDeveloped, StatusReviewing, StatusMerging:
		return true
	}
	return false
}

// CanTransition checks if a transition from -> to is valid
func CanTransition(from, to Status) bool {
	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}
