package tui

import (
	"fmt"
	"strings"
	"time"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(m.renderTasks())
	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")

	if m.ShowLogs {
		b.WriteString(m.renderLogs())
	}

	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	timer := fmt.Sprintf("[%s]", formatDuration(elapsed))
	capacity := fmt.Sprintf("Engineers: %d", m.Engineers)

	return fmt.Sprintf("%s  %s  %s",
		m.Styles.Title.Render("kugutsu"),
		m.Styles.Timer.Render(timer),
		m.Styles.Capacity.Render(capacity),
	)
}

func (m *Model) renderTasks() string {
	if len(m.order) == 0 {
		return "  Planning tasks...\n\n"
	}

	var b strings.Builder
	for _, id := range m.order {
		b.WriteString(m.renderRow(m.rows[id]))
	}
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderRow(r *taskRow) string {
	var icon string
	switch {
	case r.Merged:
		icon = m.Styles.TaskMerged.Render(r.Icon)
	case r.Failed:
		icon = m.Styles.TaskFailed.Render(r.Icon)
	case r.Icon == IconQueued:
		icon = m.Styles.TaskQueued.Render(r.Icon)
	default:
		icon = m.Styles.TaskActive.Render(r.Icon)
	}

	title := r.Title
	if title == "" {
		title = r.ID
	}
	name := m.Styles.TaskTitle.Render(title)
	phase := m.Styles.PhaseText.Render(r.Phase)

	return fmt.Sprintf("  %s %s  %s\n", icon, name, phase)
}

func (m *Model) renderStatusLine() string {
	total := len(m.order)
	bar := m.renderProgressBar(m.Merged, total, 20)

	merged := m.Styles.StatusMerged.Render(fmt.Sprintf("%d merged", m.Merged))
	failed := m.Styles.StatusFailed.Render(fmt.Sprintf("%d failed", m.Failed))
	active := m.Styles.StatusActive.Render(fmt.Sprintf("%d in flight", m.inFlight()))

	line := fmt.Sprintf("  %s %d/%d  %s | %s | %s", bar, m.Merged, total, merged, failed, active)
	if m.Conflicts > 0 {
		line += m.Styles.StatusFailed.Render(fmt.Sprintf(" | %d conflicts", m.Conflicts))
	}
	return line
}

func (m *Model) inFlight() int {
	n := 0
	for _, r := range m.rows {
		if !r.Merged && !r.Failed && r.Icon != IconQueued {
			n++
		}
	}
	return n
}

func (m *Model) renderProgressBar(done, total, width int) string {
	if total == 0 {
		total = 1
	}
	filled := min((done*width)/total, width)

	return "[" +
		m.Styles.ProgressFilled.Render(strings.Repeat("█", filled)) +
		m.Styles.ProgressEmpty.Render(strings.Repeat("░", width-filled)) +
		"]"
}

func (m *Model) renderLogs() string {
	var b strings.Builder
	b.WriteString(m.Styles.LogTitle.Render("  ── logs ──"))
	b.WriteString("\n")

	tail := m.LogLines
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	for _, line := range tail {
		b.WriteString("  " + m.Styles.LogLine.Render(line) + "\n")
	}
	return b.String()
}

func (m *Model) renderFooter() string {
	q := m.Styles.FooterKey.Render("q")
	l := m.Styles.FooterKey.Render("l")
	return m.Styles.Footer.Render(fmt.Sprintf("  %s quit  %s logs", q, l))
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
