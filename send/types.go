package send

import (
	"context"
	"time"
)

// Message is the outbound payload handed to a Transport. The transport is
// responsible for its own wire encoding.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Status classifies the outcome of one send attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// SendResult is the per-recipient outcome of a batch send. Exactly one is
// produced per attempted recipient.
type SendResult struct {
	Email  string
	Status Status
	Error  string
}

// Summary aggregates a batch of SendResults.
type Summary struct {
	Sent    int
	Failed  int
	Skipped int // recipients excluded before the batch for lacking an address
}

// Summarize partitions results by status.
func Summarize(results []SendResult) Summary {
	var s Summary
	for _, r := range results {
		if r.Status == StatusSuccess {
			s.Sent++
		} else {
			s.Failed++
		}
	}
	return s
}

// AuditEvent is one immutable record of an attempted action. The log
// collaborator owns persistence and pruning; the core only appends.
type AuditEvent struct {
	Timestamp     time.Time
	ActorEmail    string
	TargetEmail   string
	EventType     string // "send", "preview", "stats"
	Status        Status
	Message       string
	RetentionDays int
	Meta          map[string]string
}

// Stats is the aggregate view the audit log exposes.
type Stats struct {
	Total  int
	Sent   int
	Failed int
	Recent []AuditEvent // newest first
}

// Transport delivers one message using a credential established at
// construction time. Errors are descriptive and per-message.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// AuditLog is the append-only event log collaborator. Append failures are
// treated as best-effort by callers; Prune failures never propagate.
type AuditLog interface {
	Append(ctx context.Context, ev AuditEvent) error
	Stats(ctx context.Context) (Stats, error)
	Prune(ctx context.Context, retentionDays int) error
}
