package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchSettle coalesces the write+rename burst of an atomic snapshot
// replace into a single re-render.
const watchSettle = 100 * time.Millisecond

// NewWatchCmd creates the watch command: live-updating status display.
func NewWatchCmd(app *App) *cobra.Command {
	var opts StatusOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow pipeline status as it changes",
		Long: `Watch re-renders the status display whenever the orchestrator rewrites
the pipeline snapshot. Run it in a second terminal next to a running
kugutsu.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			handler := NewSignalHandler(cancel)
			handler.Start()
			defer handler.Stop()

			return WatchStatus(ctx, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.BaseRepo, "base-repo", "", "Base repository path (default: current directory)")

	return cmd
}

// WatchStatus blocks, re-rendering the snapshot on every change until ctx
// is cancelled.
func WatchStatus(ctx context.Context, w io.Writer, opts StatusOptions) error {
	wd, err := workingDir(opts.BaseRepo)
	if err != nil {
		return err
	}

	stateDir := filepath.Dir(snapshotPath(wd))
	if _, err := os.Stat(stateDir); err != nil {
		return fmt.Errorf("no pipeline state under %s (has a run started?)", wd)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// The snapshot is replaced via rename, so watch the directory rather
	// than the file itself.
	if err := watcher.Add(stateDir); err != nil {
		return fmt.Errorf("watch %s: %w", stateDir, err)
	}

	redraw := func() {
		fmt.Fprint(w, "\033[2J\033[H")
		if err := ShowStatus(w, opts); err != nil {
			fmt.Fprintf(w, "waiting for snapshot... (%v)\n", err)
		}
	}
	redraw()

	var settle *time.Timer
	settleCh := make(chan time.Time)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != filepath.Base(snapshotPath(wd)) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(watchSettle, func() {
				select {
				case settleCh <- time.Now():
				case <-ctx.Done():
				}
			})

		case <-settleCh:
			redraw()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)
		}
	}
}
