package tui

import "github.com/charmbracelet/lipgloss"

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Title    lipgloss.Style
	Timer    lipgloss.Style
	Capacity lipgloss.Style

	TaskActive lipgloss.Style
	TaskMerged lipgloss.Style
	TaskFailed lipgloss.Style
	TaskQueued lipgloss.Style
	TaskTitle  lipgloss.Style

	ProgressFilled lipgloss.Style
	ProgressEmpty  lipgloss.Style

	PhaseText lipgloss.Style

	StatusMerged lipgloss.Style
	StatusFailed lipgloss.Style
	StatusActive lipgloss.Style

	LogTitle lipgloss.Style
	LogLine  lipgloss.Style

	Footer    lipgloss.Style
	FooterKey lipgloss.Style
}

// DefaultStyles returns the default TUI styles.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Timer:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Capacity: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		TaskActive: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		TaskMerged: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		TaskFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		TaskQueued: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		TaskTitle:  lipgloss.NewStyle().Bold(true),

		ProgressFilled: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		ProgressEmpty:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),

		PhaseText: lipgloss.NewStyle().Foreground(lipgloss.Color("250")).Italic(true),

		StatusMerged: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		StatusFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		StatusActive: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),

		LogTitle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true),
		LogLine:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")),

		Footer:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1),
		FooterKey: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	}
}

// Icons used in the TUI.
const (
	IconQueued   = "○"
	IconActive   = "●"
	IconMerged   = "✓"
	IconFailed   = "✗"
	IconReview   = "⚖"
	IconMerge    = "⇅"
	IconConflict = "⚡"
)
