package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/titabash/kugutsu/internal/state"
	"github.com/titabash/kugutsu/internal/task"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	BaseRepo string
	JSON     bool
}

// NewStatusCmd creates the status command.
func NewStatusCmd(app *App) *cobra.Command {
	var opts StatusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last written pipeline status",
		Long: `Status reads the pipeline snapshot the orchestrator overwrites on every
state change and renders per-task progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ShowStatus(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.BaseRepo, "base-repo", "", "Base repository path (default: current directory)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output the raw snapshot as JSON")

	return cmd
}

// ShowStatus renders the current snapshot to w.
func ShowStatus(w io.Writer, opts StatusOptions) error {
	wd, err := workingDir(opts.BaseRepo)
	if err != nil {
		return err
	}

	snap, err := state.ReadSnapshot(snapshotPath(wd))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no pipeline status found under %s (has a run started?)", wd)
		}
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	fmt.Fprint(w, renderSnapshot(snap))
	return nil
}

func snapshotPath(baseRepo string) string {
	return filepath.Join(baseRepo, state.DirName, state.SnapshotFileName)
}

// renderSnapshot formats a snapshot for the terminal.
func renderSnapshot(snap *state.Snapshot) string {
	var b strings.Builder

	separator := strings.Repeat("═", 63)
	fmt.Fprintln(&b, separator)
	fmt.Fprintf(&b, "kugutsu run %s\n", snap.RunID)
	if snap.Request != "" {
		fmt.Fprintf(&b, "Request: %s\n", snap.Request)
	}
	fmt.Fprintf(&b, "Updated: %s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintln(&b, separator)
	fmt.Fprintln(&b)

	merged := snap.Counts[string(task.StatusMerged)]
	failed := snap.Counts[string(task.StatusFailed)]
	total := len(snap.Tasks)

	fmt.Fprintf(&b, " %s %d/%d merged\n\n", progressBar(merged, total, 20), merged, total)

	for _, t := range snap.Tasks {
		fmt.Fprintf(&b, " %s %-10s %s", statusIcon(t.Status), t.Status, t.Title)
		if t.Branch != "" {
			fmt.Fprintf(&b, "  (%s)", t.Branch)
		}
		fmt.Fprintln(&b)
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, strings.Repeat("─", 63))
	fmt.Fprintf(&b, " Tasks: %d | Merged: %d | Failed: %d | In flight: %d\n",
		total, merged, failed, total-merged-failed)
	fmt.Fprintln(&b, separator)

	return b.String()
}

func statusIcon(status string) string {
	switch task.Status(status) {
	case task.StatusMerged:
		return "✓"
	case task.StatusFailed:
		return "✗"
	case task.StatusWaiting, task.StatusReady:
		return "○"
	default:
		return "●"
	}
}

func progressBar(done, total, width int) string {
	if total == 0 {
		total = 1
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
