package config

const (
	DefaultBaseBranch       = "main"
	DefaultWorktreeBase     = ".kugutsu/worktrees"
	DefaultMaxEngineers     = 3
	DefaultClaudeCommand    = "claude"
	DefaultMaxTurns         = 30
	DefaultDevRetries       = 3
	DefaultReviewRetries    = 5
	DefaultReviewVerdict    = "APPROVED"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
	MaxEngineersCeiling     = 100
	MaxTurnsCeiling         = 50
)

// Default returns a Config with all default values applied.
func Default() *Config {
	return &Config{
		BaseBranch:   DefaultBaseBranch,
		WorktreeBase: DefaultWorktreeBase,
		MaxEngineers: DefaultMaxEngineers,
		Agent: AgentConfig{
			Mode:     AgentModeCLI,
			Command:  DefaultClaudeCommand,
			MaxTurns: DefaultMaxTurns,
		},
		Retry: RetryConfig{
			Development: DefaultDevRetries,
			Review:      DefaultReviewRetries,
		},
		Review: ReviewConfig{
			DefaultVerdict: DefaultReviewVerdict,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
