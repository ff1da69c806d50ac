package config

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// Validate re-checks the config after the caller applied flag overrides
// on top of Load.
func (c *Config) Validate() error {
	return validate(c)
}

// validate checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func validate(cfg *Config) error {
	var errs []error

	if cfg.MaxEngineers < 1 || cfg.MaxEngineers > MaxEngineersCeiling {
		errs = append(errs, &ValidationError{
			Field:   "max_engineers",
			Value:   cfg.MaxEngineers,
			Message: fmt.Sprintf("must be between 1 and %d", MaxEngineersCeiling),
		})
	}

	if cfg.BaseBranch == "" {
		errs = append(errs, &ValidationError{
			Field:   "base_branch",
			Value:   cfg.BaseBranch,
			Message: "must not be empty",
		})
	}

	switch cfg.Agent.Mode {
	case AgentModeCLI, AgentModeAPI:
	default:
		errs = append(errs, &ValidationError{
			Field:   "agent.mode",
			Value:   string(cfg.Agent.Mode),
			Message: `must be "cli" or "api"`,
		})
	}

	if cfg.Agent.Mode == AgentModeCLI && cfg.Agent.Command == "" {
		errs = append(errs, &ValidationError{
			Field:   "agent.command",
			Value:   cfg.Agent.Command,
			Message: "must not be empty in cli mode",
		})
	}

	if cfg.Agent.MaxTurns < 1 || cfg.Agent.MaxTurns > MaxTurnsCeiling {
		errs = append(errs, &ValidationError{
			Field:   "agent.max_turns",
			Value:   cfg.Agent.MaxTurns,
			Message: fmt.Sprintf("must be between 1 and %d", MaxTurnsCeiling),
		})
	}

	if cfg.Retry.Development < 0 {
		errs = append(errs, &ValidationError{
			Field:   "retry.development",
			Value:   cfg.Retry.Development,
			Message: "must be non-negative",
		})
	}

	if cfg.Retry.Review < 0 {
		errs = append(errs, &ValidationError{
			Field:   "retry.review",
			Value:   cfg.Retry.Review,
			Message: "must be non-negative",
		})
	}

	switch cfg.Review.DefaultVerdict {
	case "APPROVED", "CHANGES_REQUESTED", "COMMENTED":
	default:
		errs = append(errs, &ValidationError{
			Field:   "review.default_verdict",
			Value:   cfg.Review.DefaultVerdict,
			Message: "must be APPROVED, CHANGES_REQUESTED, or COMMENTED",
		})
	}

	switch cfg.Log.Format {
	case "console", "text", "json":
	default:
		errs = append(errs, &ValidationError{
			Field:   "log.format",
			Value:   cfg.Log.Format,
			Message: `must be "console", "text", or "json"`,
		})
	}

	for _, pattern := range cfg.ProtectedPaths {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, &ValidationError{
				Field:   "protected_paths",
				Value:   pattern,
				Message: "invalid glob pattern",
			})
		}
	}

	return errors.Join(errs...)
}
