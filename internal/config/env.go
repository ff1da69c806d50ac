package config

import (
	"os"
	"strconv"
)

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "KUGUTSU_BASE_BRANCH",
		apply:  func(c *Config, v string) { c.BaseBranch = v },
	},
	{
		envVar: "KUGUTSU_WORKTREE_BASE",
		apply:  func(c *Config, v string) { c.WorktreeBase = v },
	},
	{
		envVar: "KUGUTSU_MAX_ENGINEERS",
		apply: func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				c.MaxEngineers = n
			}
		},
	},
	{
		envVar: "KUGUTSU_MAX_TURNS",
		apply: func(c *Config, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				c.Agent.MaxTurns = n
			}
		},
	},
	{
		envVar: "KUGUTSU_CLAUDE_CMD",
		apply:  func(c *Config, v string) { c.Agent.Command = v },
	},
	{
		envVar: "KUGUTSU_AGENT_MODE",
		apply:  func(c *Config, v string) { c.Agent.Mode = AgentMode(v) },
	},
	{
		envVar: "KUGUTSU_MODEL",
		apply:  func(c *Config, v string) { c.Agent.Model = v },
	},
	{
		envVar: "KUGUTSU_LOG_LEVEL",
		apply:  func(c *Config, v string) { c.Log.Level = v },
	},
	{
		envVar: "KUGUTSU_LOG_FORMAT",
		apply:  func(c *Config, v string) { c.Log.Format = v },
	},
	{
		envVar: "KUGUTSU_METRICS_ADDR",
		apply:  func(c *Config, v string) { c.Metrics.Addr = v },
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
