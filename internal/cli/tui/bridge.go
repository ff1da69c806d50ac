package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/titabash/kugutsu/internal/events"
	"github.com/titabash/kugutsu/internal/task"
)

// Bridge converts pipeline events into bubbletea messages. It is an
// event-bus listener; the pipeline never references it.
type Bridge struct {
	program *tea.Program
}

// NewBridge creates a bridge for the given program.
func NewBridge(program *tea.Program) *Bridge {
	return &Bridge{program: program}
}

// Handler returns the bus handler feeding the program.
func (b *Bridge) Handler() events.Handler {
	return func(evt events.Event) {
		for _, msg := range eventToMsgs(evt) {
			b.program.Send(msg)
		}
	}
}

// eventToMsgs maps one bus event to zero or more messages. A
// DependencyResolved event fans out to one message per newly-ready task.
func eventToMsgs(evt events.Event) []tea.Msg {
	switch evt.Type {
	case events.DevelopmentCompleted:
		p, ok := evt.Payload.(*events.DevelopmentCompletedPayload)
		if !ok {
			return nil
		}
		return []tea.Msg{PhaseMsg{
			TaskID: p.Task.ID,
			Title:  p.Task.Title,
			Phase:  "awaiting review",
			Icon:   IconReview,
		}}

	case events.ReviewCompleted:
		p, ok := evt.Payload.(*events.ReviewCompletedPayload)
		if !ok {
			return nil
		}
		phase := "review passed"
		if p.NeedsRevision {
			phase = "revision requested"
		}
		return []tea.Msg{PhaseMsg{
			TaskID: p.Task.ID,
			Title:  p.Task.Title,
			Phase:  phase,
			Icon:   IconReview,
		}}

	case events.MergeReady:
		p, ok := evt.Payload.(*events.MergeReadyPayload)
		if !ok {
			return nil
		}
		return []tea.Msg{PhaseMsg{
			TaskID: p.Task.ID,
			Title:  p.Task.Title,
			Phase:  "merging",
			Icon:   IconMerge,
		}}

	case events.MergeConflictDetected:
		p, ok := evt.Payload.(*events.MergeConflictPayload)
		if !ok {
			return nil
		}
		return []tea.Msg{ConflictMsg{TaskID: p.Task.ID}}

	case events.MergeCompleted:
		p, ok := evt.Payload.(*events.MergeCompletedPayload)
		if !ok || !p.Success {
			// a failed merge is followed by TaskFailed
			return nil
		}
		return []tea.Msg{MergedMsg{TaskID: p.Task.ID}}

	case events.TaskFailed:
		p, ok := evt.Payload.(*events.TaskFailedPayload)
		if !ok {
			return nil
		}
		return []tea.Msg{FailedMsg{
			TaskID: p.Task.ID,
			Phase:  string(p.Phase),
			Error:  p.Error,
		}}

	case events.DependencyResolved:
		p, ok := evt.Payload.(*events.DependencyResolvedPayload)
		if !ok {
			return nil
		}
		msgs := make([]tea.Msg, 0, len(p.NewlyReady))
		for _, t := range p.NewlyReady {
			msgs = append(msgs, PhaseMsg{
				TaskID: t.ID,
				Title:  t.Title,
				Phase:  "queued",
				Icon:   IconActive,
			})
		}
		return msgs
	}

	return nil
}

// SendPlan seeds the display with the planned task list.
func (b *Bridge) SendPlan(tasks []*task.Task) {
	infos := make([]TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, TaskInfo{ID: t.ID, Title: t.Title})
	}
	b.program.Send(PlanMsg{Tasks: infos})
}

// SendDone tells the program the run has finished.
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}
