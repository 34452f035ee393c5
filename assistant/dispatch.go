package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/bassamadnan/mergemail/merge"
	"github.com/bassamadnan/mergemail/send"
)

// Parser is the interpreter collaborator. *Client satisfies it; tests
// substitute a fake.
type Parser interface {
	ParseCommand(ctx context.Context, command, currentBody string) (Command, error)
	RewriteBody(ctx context.Context, body, prompt string) (string, error)
}

// Response is what one handled chat turn produced. Text is always set;
// the other fields carry structured payloads for the UI to render.
type Response struct {
	Text          string
	Previews      []merge.MergedEmail
	Stats         *send.Stats
	Draft         string
	SendRequested bool
}

// Assistant dispatches interpreted commands against the merge core, the
// audit log, and the send gate.
type Assistant struct {
	Parser        Parser
	Log           send.AuditLog // may be nil; stats then report unavailable
	Gate          *send.Gate
	RetentionDays int
}

// Handle interprets one chat message and executes the resulting command
// against the caller's current table and template. It never panics on
// unknown commands; the worst case is an apologetic text reply.
func (a *Assistant) Handle(ctx context.Context, text string, tbl merge.Table, tmpl merge.Template, actor string) (Response, error) {
	cmd, err := a.Parser.ParseCommand(ctx, text, tmpl.Body)
	if err != nil {
		return Response{}, fmt.Errorf("unable to interpret command: %w", err)
	}

	switch c := cmd.(type) {
	case GetStats:
		return a.handleStats(ctx, actor)

	case PreviewEmails:
		limit := c.Count
		if limit <= 0 {
			limit = merge.QuickPreviewLimit
		}
		previews := merge.Preview(tbl.Recipients, tmpl, limit)
		a.audit(ctx, send.AuditEvent{
			ActorEmail: actor,
			EventType:  "preview",
			Status:     send.StatusSuccess,
			Message:    fmt.Sprintf("Previewed %d emails", len(previews)),
		})
		return Response{
			Text:     fmt.Sprintf("Here are the first %d previews:", len(previews)),
			Previews: previews,
		}, nil

	case SendEmails:
		return a.handleSend(tbl, tmpl, actor)

	case DraftEmail:
		body := c.CurrentBody
		if body == "" {
			body = tmpl.Body
		}
		draft, err := a.Parser.RewriteBody(ctx, body, c.Prompt)
		if err != nil {
			return Response{Text: fmt.Sprintf("Sorry, I couldn't draft that: %v", err)}, nil
		}
		return Response{
			Text:  "Here's a draft based on your request. You can ask for more changes or use it in the editor.",
			Draft: draft,
		}, nil

	case Unrecognized:
		log.Warn("interpreter returned unknown function", "name", c.Name)
		return Response{Text: "I understood the action but I'm not sure how to handle that function."}, nil

	case FreeText:
		return Response{Text: c.Text}, nil

	default:
		return Response{Text: "I'm not sure how to respond to that. Please try rephrasing your request."}, nil
	}
}

func (a *Assistant) handleStats(ctx context.Context, actor string) (Response, error) {
	if a.Log == nil {
		return Response{Text: "Statistics aren't available: no log spreadsheet is configured."}, nil
	}
	stats, err := a.Log.Stats(ctx)
	if err != nil {
		a.audit(ctx, send.AuditEvent{
			ActorEmail: actor,
			EventType:  "stats",
			Status:     send.StatusError,
			Message:    err.Error(),
		})
		return Response{Text: fmt.Sprintf("There was an error fetching stats: %v", err)}, nil
	}
	a.audit(ctx, send.AuditEvent{
		ActorEmail: actor,
		EventType:  "stats",
		Status:     send.StatusSuccess,
		Message:    "stats executed",
	})
	return Response{
		Text:  fmt.Sprintf("Logged events: %d total, %d sent, %d failed.", stats.Total, stats.Sent, stats.Failed),
		Stats: &stats,
	}, nil
}

func (a *Assistant) handleSend(tbl merge.Table, tmpl merge.Template, actor string) (Response, error) {
	if a.Gate == nil {
		return Response{Text: "Sending isn't configured."}, nil
	}
	sendable, unaddressed := merge.SplitSendable(tbl.Recipients)
	err := a.Gate.Request(tbl.Recipients, tmpl, actor)
	switch {
	case errors.Is(err, send.ErrSessionActive):
		return Response{Text: "A send is already in progress. Let it finish or cancel it first."}, nil
	case errors.Is(err, send.ErrNoRecipients):
		return Response{Text: "There are no recipients with a usable email address to send to."}, nil
	case err != nil:
		return Response{}, err
	}

	text := fmt.Sprintf("Ready to send %d emails. Confirm to start the countdown.", len(sendable))
	if len(unaddressed) > 0 {
		text = fmt.Sprintf("Ready to send %d emails (%d recipients skipped for missing addresses). Confirm to start the countdown.",
			len(sendable), len(unaddressed))
	}
	return Response{Text: text, SendRequested: true}, nil
}

// audit is best-effort; a dead log never fails the chat turn.
func (a *Assistant) audit(ctx context.Context, ev send.AuditEvent) {
	if a.Log == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	ev.RetentionDays = a.RetentionDays
	if ev.RetentionDays <= 0 {
		ev.RetentionDays = 30
	}
	logCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.Log.Append(logCtx, ev); err != nil {
		log.Warn("audit append failed", "type", ev.EventType, "err", err)
	}
}
