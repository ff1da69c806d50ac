package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/titabash/kugutsu/internal/agent"
	"github.com/titabash/kugutsu/internal/cli/tui"
	"github.com/titabash/kugutsu/internal/config"
	"github.com/titabash/kugutsu/internal/events"
	"github.com/titabash/kugutsu/internal/git"
	"github.com/titabash/kugutsu/internal/logging"
	"github.com/titabash/kugutsu/internal/metrics"
	"github.com/titabash/kugutsu/internal/pipeline"
	"github.com/titabash/kugutsu/internal/planner"
	"github.com/titabash/kugutsu/internal/task"
)

// summaryRounding keeps the final duration line readable.
const summaryRounding = 100 * time.Millisecond

// RunOptions holds root-command flags. Zero values mean "not set"; only
// flags the user changed override the loaded config.
type RunOptions struct {
	BaseRepo     string
	WorktreeBase string
	BaseBranch   string
	MaxEngineers int
	MaxTurns     int
	UseRemote    bool
	Cleanup      bool
	NoTUI        bool
	TasksFile    string
}

// DefaultRunOptions mirrors the config defaults shown in flag help.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		BaseBranch:   config.DefaultBaseBranch,
		WorktreeBase: config.DefaultWorktreeBase,
		MaxEngineers: config.DefaultMaxEngineers,
		MaxTurns:     config.DefaultMaxTurns,
	}
}

func addRunFlags(cmd *cobra.Command, opts *RunOptions) {
	f := cmd.Flags()
	f.StringVar(&opts.BaseRepo, "base-repo", "", "Base repository path (default: current directory)")
	f.StringVar(&opts.WorktreeBase, "worktree-base", opts.WorktreeBase, "Directory task worktrees are created under")
	f.StringVar(&opts.BaseBranch, "base-branch", opts.BaseBranch, "Branch completed tasks merge into")
	f.IntVar(&opts.MaxEngineers, "max-engineers", opts.MaxEngineers, "Concurrent engineer agents (1-100)")
	f.IntVar(&opts.MaxTurns, "max-turns", opts.MaxTurns, "Agent tool-use turns per invocation (1-50)")
	f.BoolVar(&opts.UseRemote, "use-remote", false, "Pull the base branch from origin before merges")
	f.BoolVar(&opts.Cleanup, "cleanup", false, "Remove orphaned worktrees and branches before the run")
	f.BoolVar(&opts.NoTUI, "no-tui", false, "Disable the progress TUI (log output only)")
	f.StringVar(&opts.TasksFile, "tasks-file", "", "Run a pre-planned YAML task list instead of planning")
}

// applyFlags layers changed flags over the loaded config, then re-validates.
func applyFlags(cfg *config.Config, cmd *cobra.Command, opts RunOptions) error {
	f := cmd.Flags()
	if f.Changed("worktree-base") {
		cfg.WorktreeBase = opts.WorktreeBase
		if !filepath.IsAbs(cfg.WorktreeBase) {
			cfg.WorktreeBase = filepath.Join(cfg.BaseRepo, cfg.WorktreeBase)
		}
	}
	if f.Changed("base-branch") {
		cfg.BaseBranch = opts.BaseBranch
	}
	if f.Changed("max-engineers") {
		cfg.MaxEngineers = opts.MaxEngineers
	}
	if f.Changed("max-turns") {
		cfg.Agent.MaxTurns = opts.MaxTurns
	}
	if f.Changed("use-remote") {
		cfg.UseRemote = opts.UseRemote
	}
	if f.Changed("cleanup") {
		cfg.Cleanup = opts.Cleanup
	}
	return cfg.Validate()
}

// buildExecutor selects the agent backend from config.
func buildExecutor(cfg *config.Config) (agent.Executor, error) {
	switch cfg.Agent.Mode {
	case config.AgentModeAPI:
		return agent.NewAPIExecutor(agent.APIConfig{
			Model:      cfg.Agent.Model,
			UseBedrock: cfg.Agent.UseBedrock,
			AWSRegion:  cfg.Agent.Region,
		})
	default:
		cliOpts := []agent.CLIOption{agent.WithBinary(cfg.Agent.Command)}
		if cfg.Agent.Model != "" {
			cliOpts = append(cliOpts, agent.WithModel(cfg.Agent.Model))
		}
		return agent.NewCLIExecutor(cliOpts...), nil
	}
}

// buildSink selects the log sink from config for non-TUI runs.
func buildSink(cfg *config.Config) logging.Sink {
	level := logging.ParseLevel(cfg.Log.Level)
	switch cfg.Log.Format {
	case "json":
		return logging.NewJSONSink(os.Stderr, level)
	case "text":
		return logging.NewTextSink(os.Stderr, level)
	default:
		return logging.NewConsoleSink(os.Stderr, level)
	}
}

// planTasks produces the task list: a static file when --tasks-file is
// given, otherwise a ProductOwner agent decomposition of the request.
func planTasks(ctx context.Context, executor agent.Executor, cfg *config.Config, opts RunOptions, request string, sink logging.Sink) ([]*task.Task, error) {
	var p planner.Planner
	if opts.TasksFile != "" {
		static, err := planner.LoadTasksFile(opts.TasksFile)
		if err != nil {
			return nil, err
		}
		p = static
	} else {
		p = planner.NewAgentPlanner(executor, cfg.BaseRepo, cfg.Agent.MaxTurns, cfg.Agent.Model,
			logging.New(sink, "ProductOwner", ""))
	}
	return p.Decompose(ctx, request)
}

// runPipeline is the root command body: config, executor, planner,
// pipeline, report.
func (a *App) runPipeline(cmd *cobra.Command, request string) error {
	opts := a.runOpts

	wd, err := workingDir(opts.BaseRepo)
	if err != nil {
		return err
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, cmd, opts); err != nil {
		return err
	}

	executor, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	handler := NewSignalHandler(cancel)
	handler.Start()
	defer handler.Stop()

	// TUI when stdout is a terminal, unless opted out. Logs route into the
	// TUI pane so agent output does not tear the alternate screen.
	useTUI := !opts.NoTUI && term.IsTerminal(int(os.Stdout.Fd()))

	var sink logging.Sink
	var program *tea.Program
	var bridge *tui.Bridge
	if useTUI {
		program = tea.NewProgram(tui.NewModel(cfg.MaxEngineers), tea.WithAltScreen())
		bridge = tui.NewBridge(program)
		sink = tui.NewLogSink(program, logging.ParseLevel(cfg.Log.Level))
	} else {
		sink = buildSink(cfg)
	}

	bus := events.NewBus()
	defer bus.Close()

	unsubLog := bus.Subscribe(events.LogHandler(logging.New(sink, "Pipeline", "")))
	defer unsubLog()

	met := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := met.Serve(ctx, cfg.Metrics.Addr); err != nil {
				logging.New(sink, "Pipeline", "").Warn("metrics endpoint failed", "error", err)
			}
		}()
	}

	if cfg.Cleanup {
		worktrees, err := git.NewWorktreeManager(ctx, cfg.BaseRepo, cfg.WorktreeBase, cfg.BaseBranch,
			logging.New(sink, "Worktree", ""))
		if err != nil {
			return err
		}
		if err := worktrees.CleanupOrphans(ctx); err != nil {
			return fmt.Errorf("cleanup orphans: %w", err)
		}
	}

	tasks, err := planTasks(ctx, executor, cfg, opts, request, sink)
	if err != nil {
		return fmt.Errorf("plan tasks: %w", err)
	}

	if useTUI {
		unsubscribe := bus.Subscribe(bridge.Handler())
		defer unsubscribe()
		go func() {
			if _, err := program.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
			}
		}()
		bridge.SendPlan(tasks)
	}

	mgr, err := pipeline.NewManager(ctx, cfg, executor, bus, met, sink)
	if err != nil {
		return err
	}
	summary, runErr := mgr.Run(ctx, request, tasks)

	if useTUI {
		bridge.SendDone()
		program.Wait()
	}

	if summary == nil {
		return runErr
	}

	fmt.Fprint(cmd.OutOrStdout(), summary.Report)
	fmt.Fprintf(cmd.OutOrStdout(), "\nRun %s finished in %s\n",
		summary.RunID, summary.Duration.Round(summaryRounding))

	// An interrupted run reports like a failed one: work is left undone.
	if summary.ExitCode() != ExitSuccess || runErr != nil {
		return &exitError{code: ExitTaskFailed, err: runErr}
	}
	return nil
}
