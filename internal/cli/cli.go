// Package cli is the kugutsu command tree: the root command runs the
// pipeline for a natural-language request; status, watch and version are
// read-only companions.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes follow the pipeline contract.
const (
	ExitSuccess    = 0
	ExitTaskFailed = 1
	ExitSetup      = 2
)

// exitError carries an explicit process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// VersionInfo holds build-time identification.
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// App is the CLI application with all wired dependencies.
type App struct {
	rootCmd     *cobra.Command
	versionInfo VersionInfo
	runOpts     RunOptions
}

// New creates the CLI application.
func New() *App {
	app := &App{}
	app.setupRootCmd()
	return app
}

// SetVersion sets build identification for the version command.
func (a *App) SetVersion(version, commit, date string) {
	a.versionInfo = VersionInfo{Version: version, Commit: commit, Date: date}
}

// Execute runs the application and returns the process exit code. Setup
// errors are printed; task failures were already reported by the run.
func (a *App) Execute() int {
	err := a.rootCmd.Execute()
	code := ExitCodeFor(err)
	if err != nil && code == ExitSetup {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}

// ExitCodeFor maps an execution error to the exit-code contract: nil is
// success, task failures carry their own code, and anything else (flag
// errors, config errors, planner failures) is a setup error.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	return ExitSetup
}

func (a *App) setupRootCmd() {
	a.runOpts = DefaultRunOptions()

	a.rootCmd = &cobra.Command{
		Use:   `kugutsu "<request>"`,
		Short: "Parallel AI-engineer task orchestrator",
		Long: `kugutsu decomposes a natural-language development request into tasks,
develops them in parallel git worktrees with AI engineer agents, reviews
each result, and serially merges approved work into the base branch.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			request := ""
			if len(args) > 0 {
				request = args[0]
			}
			if request == "" && a.runOpts.TasksFile == "" {
				return fmt.Errorf("a request argument or --tasks-file is required")
			}
			return a.runPipeline(cmd, request)
		},
	}

	addRunFlags(a.rootCmd, &a.runOpts)

	a.rootCmd.AddCommand(NewStatusCmd(a))
	a.rootCmd.AddCommand(NewWatchCmd(a))
	a.rootCmd.AddCommand(NewVersionCmd(a))
}

// workingDir resolves the base repo: the flag when set, else the cwd.
func workingDir(baseRepo string) (string, error) {
	if baseRepo != "" {
		return baseRepo, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return wd, nil
}
