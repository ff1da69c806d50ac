package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/google/uuid"
)

// APIConfig configures the direct Anthropic API executor.
type APIConfig struct {
	// Model is the Claude model identifier. Empty uses a current default.
	Model string

	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string

	// UseBedrock routes requests through AWS Bedrock instead of the API.
	UseBedrock bool

	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string

	// AWSProfile is an optional shared-config profile name.
	AWSProfile string

	// MaxTokens caps each response. Zero uses 8192.
	MaxTokens int64
}

// APIExecutor implements Executor against the Anthropic Messages API with a
// local tool loop, so the pipeline runs without the claude CLI installed.
// Sessions are held in memory: the resume handle maps to the accumulated
// message history of a prior invocation.
type APIExecutor struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64

	mu       sync.Mutex
	sessions map[string][]anthropic.MessageParam
}

// NewAPIExecutor creates an APIExecutor from config.
func NewAPIExecutor(cfg APIConfig) (*APIExecutor, error) {
	var opts []option.RequestOption

	if cfg.UseBedrock {
		ctx := context.Background()
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
	} else {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is not set")
		}
		opts = append(opts, option.WithAPIKey(apiKey))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_20250514
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	return &APIExecutor{
		client:    anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		sessions:  make(map[string][]anthropic.MessageParam),
	}, nil
}

// Execute runs the message/tool loop until the model ends its turn or
// MaxTurns is reached.
func (a *APIExecutor) Execute(ctx context.Context, prompt string, opts ExecuteOptions) (*Result, error) {
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if opts.WorkingDirectory == "" {
		return nil, ErrEmptyWorkDir
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	history, sessionID, err := a.resumeHistory(opts.ResumeHandle)
	if err != nil {
		return nil, err
	}

	result := &Result{SessionID: sessionID}
	record := func(m Message) {
		m.Time = time.Now()
		result.Messages = append(result.Messages, m)
		if opts.OnMessage != nil {
			opts.OnMessage(m)
		}
	}
	record(Message{Kind: MessageSessionMarker, SessionID: sessionID})
	record(Message{Kind: MessageUserInput, Text: prompt})

	messages := append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))
	tools := toolDefinitions(opts.AllowedTools)

	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 50
	}

	model := a.model
	if opts.Model != "" {
		model = anthropic.Model(opts.Model)
	}

	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     model,
			MaxTokens: a.maxTokens,
			Messages:  messages,
			Tools:     tools,
		})
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				result.ErrorMessage = ErrTimeout.Error()
				return result, ErrTimeout
			}
			result.ErrorMessage = err.Error()
			record(Message{Kind: MessageError, Text: err.Error()})
			return result, fmt.Errorf("API call failed: %w", err)
		}

		var assistantBlocks []anthropic.ContentBlockParamUnion
		var toolResultBlocks []anthropic.ContentBlockParamUnion

		for _, block := range resp.Content {
			switch variant := block.AsAny().(type) {
			case anthropic.TextBlock:
				record(Message{Kind: MessageAssistantText, Text: variant.Text})
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(variant.Text))

			case anthropic.ToolUseBlock:
				record(Message{
					Kind:      MessageToolInvocation,
					ToolName:  variant.Name,
					ToolInput: json.RawMessage(variant.Input),
				})
				assistantBlocks = append(assistantBlocks,
					anthropic.NewToolUseBlock(variant.ID, variant.Input, variant.Name))

				content, isError := runTool(ctx, opts.WorkingDirectory, variant.Name, variant.Input)
				record(Message{Kind: MessageToolResult, Text: content, IsError: isError})
				toolResultBlocks = append(toolResultBlocks,
					anthropic.NewToolResultBlock(variant.ID, content, isError))
			}
		}

		messages = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		if len(toolResultBlocks) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResultBlocks...))
		}

		if resp.StopReason == anthropic.StopReasonEndTurn {
			a.storeHistory(sessionID, messages)
			result.Success = true
			return result, nil
		}
	}

	a.storeHistory(sessionID, messages)
	result.ErrorMessage = fmt.Sprintf("max turns (%d) reached", maxTurns)
	record(Message{Kind: MessageError, Text: result.ErrorMessage})
	return result, nil
}

// resumeHistory returns the stored history for a handle, or a fresh session.
func (a *APIExecutor) resumeHistory(handle string) ([]anthropic.MessageParam, string, error) {
	if handle == "" {
		return nil, uuid.New().String(), nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	history, ok := a.sessions[handle]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownSession, handle)
	}
	return history, handle, nil
}

func (a *APIExecutor) storeHistory(sessionID string, messages []anthropic.MessageParam) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions[sessionID] = messages
}

// DropSession discards a stored session history.
func (a *APIExecutor) DropSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}
