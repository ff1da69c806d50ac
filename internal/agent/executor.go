// Package agent defines the executor interface through which every LLM-backed
// role (Engineer, TechLead, ProductOwner) is driven, plus the two concrete
// executors: the claude CLI subprocess and the direct Anthropic API client.
package agent

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// MessageKind discriminates transcript messages.
type MessageKind string

const (
	MessageUserInput      MessageKind = "user-input"
	MessageAssistantText  MessageKind = "assistant-text"
	MessageToolInvocation MessageKind = "tool-invocation"
	MessageToolResult     MessageKind = "tool-result"
	MessageSystemNotice   MessageKind = "system-notice"
	MessageError          MessageKind = "error"
	MessageSessionMarker  MessageKind = "session-marker"
)

// Message is one entry in an execution transcript.
type Message struct {
	Kind MessageKind `json:"kind"`

	// Text carries the content for text-like kinds.
	Text string `json:"text,omitempty"`

	// ToolName and ToolInput are set for tool-invocation messages.
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`

	// IsError marks a failed tool-result.
	IsError bool `json:"is_error,omitempty"`

	// SessionID is set on session-marker messages.
	SessionID string `json:"session_id,omitempty"`

	Time time.Time `json:"time"`
}

// ExecuteOptions controls a single executor invocation.
type ExecuteOptions struct {
	// WorkingDirectory is where the agent operates (a task worktree).
	WorkingDirectory string

	// MaxTurns caps the agent's tool-use iterations.
	MaxTurns int

	// AllowedTools restricts which tools the agent may invoke.
	AllowedTools []string

	// ResumeHandle continues a prior session. Empty starts fresh.
	ResumeHandle string

	// Model overrides the executor's default model when non-empty.
	Model string

	// Timeout bounds the invocation. Zero means no extra bound beyond ctx.
	Timeout time.Duration

	// OnMessage observes each transcript message as it arrives. Optional.
	OnMessage func(Message)
}

// Result is the terminal outcome of one invocation.
type Result struct {
	// Messages is the full transcript in arrival order.
	Messages []Message

	// SessionID is the opaque handle for resuming this session.
	SessionID string

	// Success reports whether the agent finished its work cleanly.
	Success bool

	// ErrorMessage describes the failure when Success is false.
	ErrorMessage string

	// Duration is wall-clock time for the invocation.
	Duration time.Duration
}

// AssistantText concatenates every assistant-text message, newline separated.
// Verdict parsing and planners read this.
func (r *Result) AssistantText() string {
	var b strings.Builder
	for _, m := range r.Messages {
		if m.Kind != MessageAssistantText {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

// ChangedToolFiles lists file paths the transcript shows the agent wrote to.
// Advisory only; the authoritative change list comes from git status.
func (r *Result) ChangedToolFiles() []string {
	var paths []string
	seen := make(map[string]bool)
	for _, m := range r.Messages {
		if m.Kind != MessageToolInvocation {
			continue
		}
		switch m.ToolName {
		case "Write", "Edit":
		default:
			continue
		}
		var input struct {
			FilePath string `json:"file_path"`
		}
		if err := json.Unmarshal(m.ToolInput, &input); err != nil {
			continue
		}
		if input.FilePath != "" && !seen[input.FilePath] {
			seen[input.FilePath] = true
			paths = append(paths, input.FilePath)
		}
	}
	return paths
}

// Executor runs one agent invocation to completion.
type Executor interface {
	Execute(ctx context.Context, prompt string, opts ExecuteOptions) (*Result, error)
}

// MockExecutor is a test implementation of Executor.
type MockExecutor struct {
	// ExecuteFunc is called when Execute is invoked
	ExecuteFunc func(ctx context.Context, prompt string, opts ExecuteOptions) (*Result, error)
}

// Execute delegates to ExecuteFunc.
func (m *MockExecutor) Execute(ctx context.Context, prompt string, opts ExecuteOptions) (*Result, error) {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, prompt, opts)
	}
	return &Result{Success: true}, nil
}
