package send

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bassamadnan/mergemail/merge"
)

func gateRecipients() []merge.Recipient {
	return []merge.Recipient{
		{"Email": "a@x.com", "Name": "A"},
		{"Name": "no address"},
	}
}

// waitForEvent reads events until one of the wanted kind arrives.
func waitForEvent(t *testing.T, g *Gate, kind EventKind) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-g.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func TestGateFullRun(t *testing.T) {
	var calls atomic.Int32
	run := func(ctx context.Context, recipients []merge.Recipient, tmpl merge.Template, actor string) []SendResult {
		calls.Add(1)
		results := make([]SendResult, 0, len(recipients))
		for _, r := range recipients {
			results = append(results, SendResult{Email: merge.EmailOf(r), Status: StatusSuccess})
		}
		return results
	}
	g := NewGate(run, 1)

	if err := g.Request(gateRecipients(), batchTmpl, "me@x.com"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if g.State() != StateConfirmRequested {
		t.Fatalf("state = %v, want confirm-requested", g.State())
	}
	if g.PendingCount() != 1 {
		t.Fatalf("PendingCount() = %d, want 1 (addressless filtered)", g.PendingCount())
	}
	if err := g.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	tick := waitForEvent(t, g, EventTick)
	if tick.Remaining != 1 {
		t.Errorf("first tick remaining = %d, want 1", tick.Remaining)
	}
	waitForEvent(t, g, EventExecuting)
	done := waitForEvent(t, g, EventDone)

	if calls.Load() != 1 {
		t.Fatalf("run invoked %d times, want exactly once", calls.Load())
	}
	if len(done.Results) != 1 || done.Results[0].Email != "a@x.com" {
		t.Errorf("done results = %+v", done.Results)
	}
	if done.Summary.Sent != 1 {
		t.Errorf("summary = %+v", done.Summary)
	}
	if g.State() != StateIdle {
		t.Errorf("state after done = %v, want idle", g.State())
	}
}

func TestGateCancelDuringCountdown(t *testing.T) {
	var calls atomic.Int32
	run := func(ctx context.Context, recipients []merge.Recipient, tmpl merge.Template, actor string) []SendResult {
		calls.Add(1)
		return nil
	}
	g := NewGate(run, 3)

	if err := g.Request(gateRecipients(), batchTmpl, "me@x.com"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if err := g.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if err := g.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	waitForEvent(t, g, EventCancelled)

	if g.State() != StateIdle {
		t.Errorf("state after cancel = %v, want idle", g.State())
	}
	// Give an orphaned timer time to misfire if the cancel were broken.
	time.Sleep(1200 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("run invoked after cancel")
	}

	// The gate must be reusable after a cancel.
	if err := g.Request(gateRecipients(), batchTmpl, "me@x.com"); err != nil {
		t.Fatalf("Request() after cancel error = %v", err)
	}
}

func TestGateDecline(t *testing.T) {
	g := NewGate(func(ctx context.Context, r []merge.Recipient, tm merge.Template, a string) []SendResult {
		t.Error("run invoked after decline")
		return nil
	}, 1)

	if err := g.Request(gateRecipients(), batchTmpl, "me@x.com"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if err := g.Decline(); err != nil {
		t.Fatalf("Decline() error = %v", err)
	}
	if g.State() != StateIdle {
		t.Errorf("state = %v, want idle", g.State())
	}
	if err := g.Decline(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second Decline() error = %v, want ErrInvalidState", err)
	}
}

func TestGateSingleSession(t *testing.T) {
	g := NewGate(func(ctx context.Context, r []merge.Recipient, tm merge.Template, a string) []SendResult {
		return nil
	}, 5)

	if err := g.Request(gateRecipients(), batchTmpl, "me@x.com"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if err := g.Request(gateRecipients(), batchTmpl, "me@x.com"); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Request() error = %v, want ErrSessionActive", err)
	}
}

func TestGateNoSendableRecipients(t *testing.T) {
	g := NewGate(func(ctx context.Context, r []merge.Recipient, tm merge.Template, a string) []SendResult {
		return nil
	}, 1)
	err := g.Request([]merge.Recipient{{"Name": "no address"}}, batchTmpl, "me@x.com")
	if !errors.Is(err, ErrNoRecipients) {
		t.Fatalf("Request() error = %v, want ErrNoRecipients", err)
	}
	if g.State() != StateIdle {
		t.Errorf("refused request left state %v", g.State())
	}
}

func TestGateFreezesRecipients(t *testing.T) {
	got := make(chan string, 1)
	run := func(ctx context.Context, recipients []merge.Recipient, tmpl merge.Template, actor string) []SendResult {
		got <- recipients[0]["Name"]
		return nil
	}
	g := NewGate(run, 1)

	recipients := []merge.Recipient{{"Email": "a@x.com", "Name": "original"}}
	if err := g.Request(recipients, batchTmpl, "me@x.com"); err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	// Mutations after Request must not reach the in-flight send.
	recipients[0]["Name"] = "mutated"

	if err := g.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	waitForEvent(t, g, EventDone)

	select {
	case name := <-got:
		if name != "original" {
			t.Fatalf("run saw %q, want frozen snapshot", name)
		}
	default:
		t.Fatal("run never invoked")
	}
}

func TestGateCancelInvalidStates(t *testing.T) {
	g := NewGate(func(ctx context.Context, r []merge.Recipient, tm merge.Template, a string) []SendResult {
		return nil
	}, 1)
	if err := g.Cancel(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Cancel() while idle error = %v, want ErrInvalidState", err)
	}
}

func TestGateConfirmWithoutRequest(t *testing.T) {
	g := NewGate(func(ctx context.Context, r []merge.Recipient, tm merge.Template, a string) []SendResult {
		return nil
	}, 1)
	if err := g.Confirm(context.Background()); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Confirm() while idle error = %v, want ErrInvalidState", err)
	}
}
