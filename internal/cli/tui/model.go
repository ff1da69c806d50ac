package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// taskRow tracks one task's display state.
type taskRow struct {
	ID    string
	Title string
	Phase string
	Icon  string

	Merged bool
	Failed bool
}

// Model is the bubbletea model for the pipeline progress view.
type Model struct {
	// Configuration
	Engineers int
	Styles    Styles

	// State
	rows  map[string]*taskRow
	order []string

	Merged    int
	Failed    int
	Conflicts int
	StartTime time.Time

	LogLines []string
	LogLimit int
	ShowLogs bool

	Width  int
	Height int

	// Control
	Quitting bool
	Done     bool
}

// NewModel creates a TUI model sized for the given engineer pool.
func NewModel(engineers int) *Model {
	return &Model{
		Engineers: engineers,
		Styles:    DefaultStyles(),
		rows:      make(map[string]*taskRow),
		StartTime: time.Now(),
		LogLimit:  200,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tickCmd()
}

// TickMsg is sent every second to update the timer.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg signals the run has finished and the TUI should exit.
type DoneMsg struct{}

// TaskInfo identifies one planned task.
type TaskInfo struct {
	ID    string
	Title string
}

// PlanMsg carries the planned task list; it seeds the display rows.
type PlanMsg struct {
	Tasks []TaskInfo
}

// PhaseMsg updates a task's current phase line.
type PhaseMsg struct {
	TaskID string
	Title  string
	Phase  string
	Icon   string
}

// MergedMsg marks a task merged into the base branch.
type MergedMsg struct {
	TaskID string
}

// FailedMsg marks a task terminally failed.
type FailedMsg struct {
	TaskID string
	Phase  string
	Error  string
}

// ConflictMsg reports a merge conflict hand-back for a task.
type ConflictMsg struct {
	TaskID string
}

// LogMsg appends a log line to the log pane.
type LogMsg struct {
	Line string
}

// row returns the display row for a task, creating it on first reference.
// Conflict-resolution tasks appear here without a PlanMsg entry.
func (m *Model) row(id, title string) *taskRow {
	if r, ok := m.rows[id]; ok {
		if title != "" {
			r.Title = title
		}
		return r
	}
	r := &taskRow{ID: id, Title: title, Phase: "waiting", Icon: IconQueued}
	m.rows[id] = r
	m.order = append(m.order, id)
	return r
}
