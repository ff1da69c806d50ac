// Package state maintains the .kugutsu/ workspace under the base repository:
// per-task instruction files, the completion checklist, the pipeline status
// snapshot, and the optional sqlite run history. The layout is a convention
// for external tools; the orchestrator never reads it back.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/titabash/kugutsu/internal/task"
)

// DirName is the workspace directory created under the base repository.
const DirName = ".kugutsu"

// Workspace writes the per-run convention files.
type Workspace struct {
	// Root is <baseRepo>/.kugutsu
	Root string

	// Project is the subdirectory for this run's instruction files
	Project string
}

// NewWorkspace creates the workspace directories for a run. The project name
// is derived from the user request (first few words, slugged).
func NewWorkspace(baseRepo, project string) (*Workspace, error) {
	w := &Workspace{
		Root:    filepath.Join(baseRepo, DirName),
		Project: slug(project),
	}
	if err := os.MkdirAll(w.tasksDir(), 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return w, nil
}

func (w *Workspace) projectDir() string {
	return filepath.Join(w.Root, w.Project)
}

func (w *Workspace) tasksDir() string {
	return filepath.Join(w.projectDir(), "tasks")
}

var slugPattern = regexp.MustCompile(`[^a-z0-9\p{Hiragana}\p{Katakana}\p{Han}]+`)

// slug derives a filesystem-safe project name from a free-text request.
func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugPattern.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 48 {
		// Cut on a rune boundary so multi-byte titles never produce an
		// invalid-UTF-8 directory name.
		cut := 48
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if s == "" {
		s = "project"
	}
	return s
}

// WriteInstructions dumps one Markdown brief per task before admission.
func (w *Workspace) WriteInstructions(tasks []*task.Task) error {
	for _, t := range tasks {
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", t.Title)
		fmt.Fprintf(&b, "- ID: %s\n- 種別: %s\n- 優先度: %s\n", t.ID, t.Type, t.Priority)
		if len(t.Dependencies) > 0 {
			fmt.Fprintf(&b, "- 依存タスク: %s\n", strings.Join(t.Dependencies, ", "))
		}
		fmt.Fprintf(&b, "\n## 説明\n\n%s\n", t.Description)

		path := filepath.Join(w.tasksDir(), t.ID+".md")
		if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
			return fmt.Errorf("write instruction file for %s: %w", t.ID, err)
		}
	}
	return nil
}

// CompletionFileName lists each task with a completion checkbox.
const CompletionFileName = "COMPLETED_TASKS.md"

// WriteCompletionStatus overwrites the checklist reflecting current task
// states. Merged tasks are checked; everything else is not. Callers pass
// value copies so the write never reads live tasks under mutation.
func (w *Workspace) WriteCompletionStatus(tasks []task.Task) error {
	sorted := make([]task.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	b.WriteString("# タスク完了状況\n\n")
	for _, t := range sorted {
		mark := " "
		if t.Status == task.StatusMerged {
			mark = "x"
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", mark, t.Title, t.ID)
	}

	path := filepath.Join(w.projectDir(), CompletionFileName)
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write completion status: %w", err)
	}
	return nil
}

// SnapshotFileName is the pipeline status file, overwritten on every state
// change.
const SnapshotFileName = "pipeline-status.json"

// Snapshot is the serialized pipeline state.
type Snapshot struct {
	RunID     string         `json:"run_id"`
	Request   string         `json:"request"`
	UpdatedAt time.Time      `json:"updated_at"`
	Counts    map[string]int `json:"counts"`
	Tasks     []TaskSnapshot `json:"tasks"`
}

// TaskSnapshot is one task's row in the snapshot.
type TaskSnapshot struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Branch   string `json:"branch,omitempty"`
	Priority string `json:"priority"`
}

// SnapshotPath returns where the snapshot is written.
func (w *Workspace) SnapshotPath() string {
	return filepath.Join(w.Root, SnapshotFileName)
}

// WriteSnapshot atomically overwrites the pipeline status file. Readers
// (kugutsu status, kugutsu watch) never observe a partial write. Tasks are
// value copies taken under the scheduler lock, so the snapshot never races
// with worker goroutines mutating the live tasks.
func (w *Workspace) WriteSnapshot(runID, request string, tasks []task.Task) error {
	snap := Snapshot{
		RunID:     runID,
		Request:   request,
		UpdatedAt: time.Now(),
		Counts:    make(map[string]int),
	}
	sorted := make([]task.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, t := range sorted {
		snap.Counts[string(t.Status)]++
		snap.Tasks = append(snap.Tasks, TaskSnapshot{
			ID:       t.ID,
			Title:    t.Title,
			Type:     string(t.Type),
			Status:   string(t.Status),
			Branch:   t.BranchName,
			Priority: string(t.Priority),
		})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := w.SnapshotPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.SnapshotPath()); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot parses a snapshot file, for the status and watch commands.
func ReadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	return &snap, nil
}
