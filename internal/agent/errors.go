package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPrompt indicates Execute was called with an empty prompt
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrEmptyWorkDir indicates Execute was called with an empty working directory
	ErrEmptyWorkDir = errors.New("working directory cannot be empty")

	// ErrTimeout indicates the agent execution exceeded its timeout
	ErrTimeout = errors.New("agent execution timed out")

	// ErrUnknownSession indicates a resume handle that no live session matches
	ErrUnknownSession = errors.New("unknown session handle")
)

// ExecutionError wraps a failed executor subprocess run.
type ExecutionError struct {
	ExitCode int
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent execution failed (exit %d): %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("agent execution failed (exit %d)", e.ExitCode)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates an ExecutionError.
func NewExecutionError(exitCode int, err error) *ExecutionError {
	return &ExecutionError{
		ExitCode: exitCode,
		Err:      err,
	}
}
