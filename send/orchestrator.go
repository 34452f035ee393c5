package send

import (
	"context"
	"fmt"
	"time"

	"github.com/bassamadnan/mergemail/merge"
	"github.com/charmbracelet/log"
)

const (
	transportTimeout = 30 * time.Second
	auditTimeout     = 10 * time.Second

	defaultRetentionDays = 30
)

// Orchestrator runs a batch send: one message per recipient, strictly in
// input order, one at a time. A failed recipient never aborts the batch,
// and audit logging is isolated from the send outcome.
type Orchestrator struct {
	Transport Transport
	Log       AuditLog // may be nil, logging is then skipped entirely

	// RetentionDays is stamped on audit events and used for the
	// best-effort prune after a batch. Zero means the default of 30.
	RetentionDays int
}

// SendBatch renders and sends one message per recipient. Recipients without
// a usable address are skipped and produce no SendResult; callers are
// expected to pre-filter with merge.SplitSendable and report the skipped
// count themselves. The returned slice holds exactly one result per
// attempted recipient, in input order.
//
// There are no retries: a transport failure becomes one error result and
// processing moves on to the next recipient.
func (o *Orchestrator) SendBatch(ctx context.Context, recipients []merge.Recipient, tmpl merge.Template, actorEmail string) []SendResult {
	results := make([]SendResult, 0, len(recipients))
	log.Info("starting batch send", "recipients", len(recipients), "actor", actorEmail)

	for i, r := range recipients {
		to := merge.EmailOf(r)
		if to == "" {
			log.Warn("recipient has no address, skipping", "index", i)
			continue
		}

		msg := Message{
			To:      to,
			Subject: merge.Render(tmpl.Subject, r),
			Body:    merge.Render(tmpl.Body, r),
		}

		sendCtx, cancel := context.WithTimeout(ctx, transportTimeout)
		err := o.Transport.Send(sendCtx, msg)
		cancel()

		if err != nil {
			log.Error("send failed", "to", to, "err", err)
			results = append(results, SendResult{Email: to, Status: StatusError, Error: err.Error()})
			o.audit(ctx, AuditEvent{
				ActorEmail:  actorEmail,
				TargetEmail: to,
				EventType:   "send",
				Status:      StatusError,
				Message:     fmt.Sprintf("Failed to send: %s", err.Error()),
				Meta:        map[string]string{"error": err.Error()},
			})
			continue
		}

		log.Info("sent", "to", to)
		results = append(results, SendResult{Email: to, Status: StatusSuccess})
		o.audit(ctx, AuditEvent{
			ActorEmail:  actorEmail,
			TargetEmail: to,
			EventType:   "send",
			Status:      StatusSuccess,
			Message:     fmt.Sprintf("Email sent to %s", to),
			Meta:        map[string]string{"subject": msg.Subject},
		})
	}

	o.pruneAsync()

	s := Summarize(results)
	log.Info("batch send complete", "sent", s.Sent, "failed", s.Failed)
	return results
}

func (o *Orchestrator) retentionDays() int {
	if o.RetentionDays > 0 {
		return o.RetentionDays
	}
	return defaultRetentionDays
}

// audit appends one event, swallowing any failure. A broken log must never
// change the outcome of the send it describes.
func (o *Orchestrator) audit(ctx context.Context, ev AuditEvent) {
	if o.Log == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	ev.RetentionDays = o.retentionDays()

	logCtx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()
	if err := o.Log.Append(logCtx, ev); err != nil {
		log.Warn("audit append failed", "type", ev.EventType, "target", ev.TargetEmail, "err", err)
	}
}

// pruneAsync asks the log to drop events past retention. Fire and forget:
// the caller's batch result does not wait on it.
func (o *Orchestrator) pruneAsync() {
	if o.Log == nil {
		return
	}
	days := o.retentionDays()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := o.Log.Prune(ctx, days); err != nil {
			log.Warn("audit prune failed", "err", err)
		}
	}()
}
