package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/titabash/kugutsu/internal/logging"
)

// LogSink routes pipeline log records into the TUI log pane instead of
// stderr, so agent output does not tear the alternate screen.
type LogSink struct {
	program *tea.Program
	min     logging.Level
	lines   chan string
}

// NewLogSink creates a sink sending formatted records into the program.
// Delivery is best-effort: when the channel is full, records are dropped
// rather than blocking an emit path.
func NewLogSink(program *tea.Program, min logging.Level) *LogSink {
	s := &LogSink{
		program: program,
		min:     min,
		lines:   make(chan string, 256),
	}
	go func() {
		for line := range s.lines {
			s.program.Send(LogMsg{Line: line})
		}
	}()
	return s
}

// Log implements logging.Sink.
func (s *LogSink) Log(r logging.Record) {
	if r.Level < s.min {
		return
	}

	prefix := r.Executor.Type
	if r.Executor.ID != "" {
		if id := r.Executor.ID; len(id) > 8 {
			prefix += "-" + id[:8]
		} else {
			prefix += "-" + id
		}
	}

	line := fmt.Sprintf("%s [%s] %s", r.Level, prefix, r.Message)
	if v, ok := r.Context["task"]; ok {
		line += fmt.Sprintf(" task=%v", v)
	}
	if len(line) > 2000 {
		line = line[:2000] + "..."
	}

	select {
	case s.lines <- line:
	default:
	}
}
