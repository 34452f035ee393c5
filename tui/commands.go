package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bassamadnan/mergemail/assistant"
	"github.com/bassamadnan/mergemail/merge"
	"github.com/bassamadnan/mergemail/send"
)

// waitForGateEventCmd listens on the gate's event channel and forwards the
// next event. It re-queues itself from Update so the stream keeps flowing.
func waitForGateEventCmd(events <-chan send.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return GateEventMsg(ev)
	}
}

// askAssistantCmd runs one chat turn off the UI goroutine.
func askAssistantCmd(a *assistant.Assistant, text string, tbl merge.Table, tmpl merge.Template, actor string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
		defer cancel()
		resp, err := a.Handle(ctx, text, tbl, tmpl, actor)
		return AssistantReplyMsg{Response: resp, Err: err}
	}
}

// statusTickCmd creates a ticker for updating the status bar periodically.
func statusTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return StatusTickMsg{Time: t}
	})
}
