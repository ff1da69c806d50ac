package tui

import tea "github.com/charmbracelet/bubbletea"

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		case "l":
			m.ShowLogs = !m.ShowLogs
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case TickMsg:
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case PlanMsg:
		for _, t := range msg.Tasks {
			m.row(t.ID, t.Title)
		}

	case PhaseMsg:
		r := m.row(msg.TaskID, msg.Title)
		if r.Merged || r.Failed {
			break
		}
		r.Phase = msg.Phase
		r.Icon = msg.Icon

	case MergedMsg:
		r := m.row(msg.TaskID, "")
		if !r.Merged {
			r.Merged = true
			r.Phase = "merged"
			r.Icon = IconMerged
			m.Merged++
		}

	case FailedMsg:
		r := m.row(msg.TaskID, "")
		if !r.Failed && !r.Merged {
			r.Failed = true
			r.Phase = "failed (" + msg.Phase + ")"
			r.Icon = IconFailed
			m.Failed++
		}

	case ConflictMsg:
		r := m.row(msg.TaskID, "")
		r.Phase = "merge conflict, resolving"
		r.Icon = IconConflict
		m.Conflicts++

	case LogMsg:
		m.LogLines = append(m.LogLines, msg.Line)
		if m.LogLimit > 0 && len(m.LogLines) > m.LogLimit {
			m.LogLines = m.LogLines[len(m.LogLines)-m.LogLimit:]
		}
	}

	return m, nil
}
