// Package config loads orchestrator configuration: defaults, then the
// optional .kugutsu.yaml file, then KUGUTSU_* environment overrides, then
// validation. CLI flags are applied by the caller on top of the loaded
// config.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// AgentMode selects how agents are executed.
type AgentMode string

const (
	// AgentModeCLI drives the claude CLI as a subprocess.
	AgentModeCLI AgentMode = "cli"

	// AgentModeAPI calls the Anthropic API directly.
	AgentModeAPI AgentMode = "api"
)

// Config holds all configuration for an orchestrator run.
// It is immutable after creation via Load().
type Config struct {
	// BaseRepo is the absolute path to the base repository
	BaseRepo string `yaml:"base_repo"`

	// BaseBranch is the branch completed tasks are merged into
	BaseBranch string `yaml:"base_branch"`

	// WorktreeBase is the directory task worktrees are created under.
	// Relative paths are resolved from the base repository.
	WorktreeBase string `yaml:"worktree_base"`

	// MaxEngineers is the maximum number of concurrent engineer agents (1-100)
	MaxEngineers int `yaml:"max_engineers"`

	// UseRemote enables pulling the base branch from origin before merges
	UseRemote bool `yaml:"use_remote"`

	// Cleanup removes orphaned worktrees and branches before the run
	Cleanup bool `yaml:"cleanup"`

	// Agent contains executor settings
	Agent AgentConfig `yaml:"agent"`

	// Retry contains per-stage retry caps
	Retry RetryConfig `yaml:"retry"`

	// Review contains review workflow settings
	Review ReviewConfig `yaml:"review"`

	// ProtectedPaths are doublestar globs; changed files matching any of
	// them fail the development result before review
	ProtectedPaths []string `yaml:"protected_paths"`

	// Log contains logging settings
	Log LogConfig `yaml:"log"`

	// Metrics contains the optional Prometheus endpoint settings
	Metrics MetricsConfig `yaml:"metrics"`

	// History controls the optional sqlite run-history database
	History HistoryConfig `yaml:"history"`
}

// AgentConfig controls agent execution.
type AgentConfig struct {
	// Mode is "cli" (claude subprocess) or "api" (Anthropic API)
	Mode AgentMode `yaml:"mode"`

	// Command is the claude CLI binary path or name (cli mode)
	Command string `yaml:"command"`

	// Model overrides the default model when non-empty
	Model string `yaml:"model"`

	// MaxTurns limits an agent's tool-use iterations (1-50)
	MaxTurns int `yaml:"max_turns"`

	// UseBedrock routes API-mode calls through AWS Bedrock
	UseBedrock bool `yaml:"use_bedrock"`

	// Region is the AWS region for Bedrock
	Region string `yaml:"region"`
}

// RetryConfig holds per-stage retry caps.
type RetryConfig struct {
	// Development is how many times a failed development attempt requeues
	Development int `yaml:"development"`

	// Review is how many revision rounds a CHANGES_REQUESTED verdict may
	// trigger before the task fails
	Review int `yaml:"review"`
}

// ReviewConfig controls the review workflow.
type ReviewConfig struct {
	// DefaultVerdict applies when the reviewer output matches neither the
	// explicit header nor any keyword: "APPROVED" (historical default) or
	// "CHANGES_REQUESTED" for stricter gating
	DefaultVerdict string `yaml:"default_verdict"`
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is debug, info, warn, or error
	Level string `yaml:"level"`

	// Format is "console" (colored, human-readable), "text", or "json"
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address (e.g. ":9090"); empty disables the endpoint
	Addr string `yaml:"addr"`
}

// HistoryConfig controls the run-history database.
type HistoryConfig struct {
	// Enabled writes run and task outcomes to .kugutsu/history.db
	Enabled bool `yaml:"enabled"`
}

// ConfigFileName is the per-repository config file.
const ConfigFileName = ".kugutsu.yaml"

// Load builds the configuration for a run rooted at baseRepo. Missing config
// file is not an error; defaults apply.
func Load(baseRepo string) (*Config, error) {
	cfg := Default()

	abs, err := filepath.Abs(baseRepo)
	if err != nil {
		return nil, fmt.Errorf("resolve base repo: %w", err)
	}
	cfg.BaseRepo = abs

	configPath := filepath.Join(abs, ConfigFileName)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", ConfigFileName, err)
		}
		// The file must not silently relocate the repository.
		cfg.BaseRepo = abs
	}

	applyEnvOverrides(cfg)

	if !filepath.IsAbs(cfg.WorktreeBase) {
		cfg.WorktreeBase = filepath.Join(abs, cfg.WorktreeBase)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
