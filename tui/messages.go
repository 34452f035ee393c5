package tui

import (
	"time"

	"github.com/bassamadnan/mergemail/assistant"
	"github.com/bassamadnan/mergemail/send"
)

// A message carrying progress from the send gate (ticks, cancellation,
// execution, final results).
type GateEventMsg send.Event

// A message carrying the assistant's reply to a chat turn.
type AssistantReplyMsg struct {
	Response assistant.Response
	Err      error
}

// A message for timed status updates.
type StatusTickMsg struct{ Time time.Time }

// Message to clear a temporary status message after a timeout.
type clearTempStatusMsg struct{}
