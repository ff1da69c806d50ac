package logging

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ConsoleSink writes human-readable lines with a colored per-executor
// prefix, so interleaved output from parallel engineers stays legible.
type ConsoleSink struct {
	mu  sync.Mutex
	w   io.Writer
	min Level
}

// NewConsoleSink creates a console sink writing to w at the given minimum
// level.
func NewConsoleSink(w io.Writer, min Level) *ConsoleSink {
	return &ConsoleSink{w: w, min: min}
}

var executorColors = map[string]*color.Color{
	"Pipeline":     color.New(color.FgWhite, color.Bold),
	"Engineer":     color.New(color.FgCyan),
	"TechLead":     color.New(color.FgMagenta),
	"ProductOwner": color.New(color.FgBlue),
	"Merge":        color.New(color.FgYellow),
	"Worktree":     color.New(color.FgGreen),
}

var levelColors = map[Level]*color.Color{
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

func (c *ConsoleSink) Log(r Record) {
	if r.Level < c.min {
		return
	}

	prefix := r.Executor.Type
	if r.Executor.ID != "" {
		prefix = fmt.Sprintf("%s-%s", r.Executor.Type, shortID(r.Executor.ID))
	}
	if col, ok := executorColors[r.Executor.Type]; ok {
		prefix = col.Sprintf("[%s]", prefix)
	} else {
		prefix = fmt.Sprintf("[%s]", prefix)
	}

	msg := r.Message
	if col, ok := levelColors[r.Level]; ok {
		msg = col.Sprint(msg)
	}

	line := fmt.Sprintf("%s %s %s", r.Time.Format(time.TimeOnly), prefix, msg)
	if len(r.Context) > 0 {
		line += " " + formatContext(r.Context)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

// shortID truncates UUIDs so console prefixes stay narrow.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatContext(ctx map[string]any) string {
	// Stable-ish rendering: well-known keys first, rest in map order.
	out := ""
	for _, k := range []string{"task", "title", "phase", "branch"} {
		if v, ok := ctx[k]; ok {
			out += fmt.Sprintf("%s=%v ", k, v)
		}
	}
	for k, v := range ctx {
		switch k {
		case "task", "title", "phase", "branch":
			continue
		}
		out += fmt.Sprintf("%s=%v ", k, v)
	}
	if out == "" {
		return ""
	}
	return "(" + out[:len(out)-1] + ")"
}
