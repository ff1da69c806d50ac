package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/tidwall/gjson"
)

// CLIExecutor drives the claude CLI as a subprocess in stream-json mode and
// converts its event stream into transcript messages.
type CLIExecutor struct {
	// binary is the path to the claude binary (default: "claude")
	binary string

	// model is the default model flag value; empty uses the CLI default
	model string

	// skipPermissions passes --dangerously-skip-permissions so agent tool
	// calls run unattended
	skipPermissions bool
}

// CLIOption configures a CLIExecutor.
type CLIOption func(*CLIExecutor)

// WithBinary overrides the claude binary path.
func WithBinary(binary string) CLIOption {
	return func(c *CLIExecutor) { c.binary = binary }
}

// WithModel sets the default model.
func WithModel(model string) CLIOption {
	return func(c *CLIExecutor) { c.model = model }
}

// WithPermissionPrompts re-enables the CLI's interactive permission prompts.
func WithPermissionPrompts() CLIOption {
	return func(c *CLIExecutor) { c.skipPermissions = false }
}

// NewCLIExecutor creates a CLIExecutor with default settings.
func NewCLIExecutor(opts ...CLIOption) *CLIExecutor {
	c := &CLIExecutor{
		binary:          "claude",
		skipPermissions: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs the claude CLI and parses its stream-json output.
func (c *CLIExecutor) Execute(ctx context.Context, prompt string, opts ExecuteOptions) (*Result, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if opts.WorkingDirectory == "" {
		return nil, ErrEmptyWorkDir
	}

	cmdCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := c.buildArgs(prompt, opts)
	cmd := exec.CommandContext(cmdCtx, c.binary, args...)
	cmd.Dir = opts.WorkingDirectory

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.binary, err)
	}

	result := &Result{}

	// Agent output lines can be large (tool results with file contents), so
	// the scanner buffer is raised well past the 64KB default.
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		c.consumeLine(line, result, opts.OnMessage)
	}
	scanErr := scanner.Err()

	waitErr := cmd.Wait()
	result.Duration = time.Since(start)

	if cmdCtx.Err() == context.DeadlineExceeded {
		result.Success = false
		result.ErrorMessage = ErrTimeout.Error()
		return result, ErrTimeout
	}

	if waitErr != nil {
		exitCode := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				exitCode = status.ExitStatus()
			}
		}
		result.Success = false
		if result.ErrorMessage == "" {
			result.ErrorMessage = strings.TrimSpace(stderr.String())
			if result.ErrorMessage == "" {
				result.ErrorMessage = waitErr.Error()
			}
		}
		return result, NewExecutionError(exitCode, waitErr)
	}
	if scanErr != nil {
		result.Success = false
		result.ErrorMessage = scanErr.Error()
		return result, fmt.Errorf("read agent stream: %w", scanErr)
	}

	return result, nil
}

// buildArgs constructs the command line for one invocation.
func (c *CLIExecutor) buildArgs(prompt string, opts ExecuteOptions) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}

	if c.skipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	model := opts.Model
	if model == "" {
		model = c.model
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.ResumeHandle != "" {
		args = append(args, "--resume", opts.ResumeHandle)
	}
	args = append(args, "-p", prompt)
	return args
}

// consumeLine parses one stream-json line into transcript messages.
func (c *CLIExecutor) consumeLine(line []byte, result *Result, onMessage func(Message)) {
	if !gjson.ValidBytes(line) {
		return
	}

	record := func(m Message) {
		m.Time = time.Now()
		result.Messages = append(result.Messages, m)
		if onMessage != nil {
			onMessage(m)
		}
	}

	switch gjson.GetBytes(line, "type").String() {
	case "system":
		if sid := gjson.GetBytes(line, "session_id").String(); sid != "" && result.SessionID == "" {
			result.SessionID = sid
			record(Message{Kind: MessageSessionMarker, SessionID: sid})
		}
		record(Message{Kind: MessageSystemNotice, Text: gjson.GetBytes(line, "subtype").String()})

	case "assistant":
		for _, block := range gjson.GetBytes(line, "message.content").Array() {
			switch block.Get("type").String() {
			case "text":
				record(Message{Kind: MessageAssistantText, Text: block.Get("text").String()})
			case "tool_use":
				record(Message{
					Kind:      MessageToolInvocation,
					ToolName:  block.Get("name").String(),
					ToolInput: json.RawMessage(block.Get("input").Raw),
				})
			}
		}

	case "user":
		for _, block := range gjson.GetBytes(line, "message.content").Array() {
			switch block.Get("type").String() {
			case "tool_result":
				record(Message{
					Kind:    MessageToolResult,
					Text:    block.Get("content").String(),
					IsError: block.Get("is_error").Bool(),
				})
			case "text":
				record(Message{Kind: MessageUserInput, Text: block.Get("text").String()})
			}
		}

	case "result":
		if sid := gjson.GetBytes(line, "session_id").String(); sid != "" {
			result.SessionID = sid
		}
		isError := gjson.GetBytes(line, "is_error").Bool()
		result.Success = !isError
		if isError {
			result.ErrorMessage = gjson.GetBytes(line, "result").String()
			if result.ErrorMessage == "" {
				result.ErrorMessage = gjson.GetBytes(line, "subtype").String()
			}
			record(Message{Kind: MessageError, Text: result.ErrorMessage})
		}

	case "error":
		text := gjson.GetBytes(line, "message").String()
		if text == "" {
			text = gjson.GetBytes(line, "error").String()
		}
		record(Message{Kind: MessageError, Text: text})
		result.ErrorMessage = text
	}
}
