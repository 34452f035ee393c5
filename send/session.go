package send

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bassamadnan/mergemail/merge"
	"github.com/charmbracelet/log"
)

// DefaultCountdownSeconds is how long a confirmed send stays cancellable.
const DefaultCountdownSeconds = 5

var (
	// ErrSessionActive means a send session is already pending or running.
	ErrSessionActive = errors.New("a send is already in progress")
	// ErrNoRecipients means the requested batch has no sendable recipient.
	ErrNoRecipients = errors.New("no recipients with a usable email address")
	// ErrInvalidState means the operation does not apply to the current state.
	ErrInvalidState = errors.New("operation not valid in current session state")
	// ErrNotCancellable means the countdown already elapsed and the batch is running.
	ErrNotCancellable = errors.New("send is executing and can no longer be cancelled")
)

// State is the gate's position in its lifecycle. Cancelled is transient
// (it immediately settles back to Idle) and is observable only through the
// EventCancelled event.
type State int

const (
	StateIdle State = iota
	StateConfirmRequested
	StateCountdown
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfirmRequested:
		return "confirm-requested"
	case StateCountdown:
		return "countdown"
	case StateExecuting:
		return "executing"
	}
	return "unknown"
}

// EventKind tags gate events.
type EventKind int

const (
	// EventTick carries the remaining countdown seconds.
	EventTick EventKind = iota
	// EventCancelled means the countdown was stopped before executing.
	EventCancelled
	// EventExecuting means the countdown elapsed and the batch started.
	EventExecuting
	// EventDone carries the full batch results.
	EventDone
)

// Event is emitted on the gate's event channel as the session progresses.
type Event struct {
	Kind      EventKind
	Remaining int
	Results   []SendResult
	Summary   Summary
}

// RunFunc executes a frozen batch. Normally (*Orchestrator).SendBatch.
type RunFunc func(ctx context.Context, recipients []merge.Recipient, tmpl merge.Template, actor string) []SendResult

type pendingSend struct {
	recipients []merge.Recipient
	tmpl       merge.Template
	actor      string
}

// Gate guards the orchestrator behind explicit confirmation and a
// cancellable countdown. At most one session is ever pending or executing;
// further requests are rejected with ErrSessionActive until it settles.
//
// The recipient subset and template are deep-copied when the session is
// requested, so edits made while the countdown runs cannot affect the
// in-flight send.
type Gate struct {
	run   RunFunc
	delay int

	mu        sync.Mutex
	state     State
	gen       int // invalidates timers from cancelled sessions
	remaining int
	pending   *pendingSend
	timer     *time.Timer
	runCtx    context.Context
	events    chan Event
}

// NewGate wires a gate around run. countdownSeconds <= 0 selects the
// default of 5.
func NewGate(run RunFunc, countdownSeconds int) *Gate {
	if countdownSeconds <= 0 {
		countdownSeconds = DefaultCountdownSeconds
	}
	return &Gate{
		run:    run,
		delay:  countdownSeconds,
		state:  StateIdle,
		events: make(chan Event, 32),
	}
}

// Events returns the channel session progress is published on.
func (g *Gate) Events() <-chan Event { return g.events }

// State returns the current session state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Remaining returns the countdown seconds left, 0 outside Countdown.
func (g *Gate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateCountdown {
		return 0
	}
	return g.remaining
}

// PendingCount returns how many recipients the pending session will send
// to, 0 when no session is pending.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return 0
	}
	return len(g.pending.recipients)
}

// Request opens a session for the given batch. Recipients without a usable
// address are filtered out here; if none remain the request is refused.
// The session then waits in ConfirmRequested until Confirm or Decline.
func (g *Gate) Request(recipients []merge.Recipient, tmpl merge.Template, actor string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateIdle {
		return ErrSessionActive
	}
	sendable, _ := merge.SplitSendable(recipients)
	if len(sendable) == 0 {
		return ErrNoRecipients
	}
	g.pending = &pendingSend{
		recipients: merge.Clone(sendable),
		tmpl:       tmpl,
		actor:      actor,
	}
	g.state = StateConfirmRequested
	log.Debug("send session requested", "recipients", len(sendable))
	return nil
}

// Decline abandons a requested session with no side effects.
func (g *Gate) Decline() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateConfirmRequested {
		return ErrInvalidState
	}
	g.state = StateIdle
	g.pending = nil
	return nil
}

// Confirm starts the countdown. ctx bounds the eventual batch execution,
// not the countdown itself.
func (g *Gate) Confirm(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateConfirmRequested {
		return ErrInvalidState
	}
	g.state = StateCountdown
	g.remaining = g.delay
	g.runCtx = ctx
	g.gen++
	gen := g.gen
	g.emit(Event{Kind: EventTick, Remaining: g.remaining})
	g.timer = time.AfterFunc(time.Second, func() { g.tick(gen) })
	log.Debug("send session confirmed, countdown started", "seconds", g.delay)
	return nil
}

// Cancel stops a pending or counting-down session. Once the batch is
// executing it can no longer be cancelled; that boundary is deliberate.
func (g *Gate) Cancel() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case StateConfirmRequested, StateCountdown:
		g.gen++ // orphan any timer that already fired
		if g.timer != nil {
			g.timer.Stop()
			g.timer = nil
		}
		g.state = StateIdle
		g.pending = nil
		g.emit(Event{Kind: EventCancelled})
		log.Debug("send session cancelled")
		return nil
	case StateExecuting:
		return ErrNotCancellable
	default:
		return ErrInvalidState
	}
}

func (g *Gate) tick(gen int) {
	g.mu.Lock()
	if g.gen != gen || g.state != StateCountdown {
		g.mu.Unlock()
		return
	}
	g.remaining--
	if g.remaining > 0 {
		g.emit(Event{Kind: EventTick, Remaining: g.remaining})
		g.timer = time.AfterFunc(time.Second, func() { g.tick(gen) })
		g.mu.Unlock()
		return
	}

	g.state = StateExecuting
	g.timer = nil
	p := g.pending
	ctx := g.runCtx
	g.emit(Event{Kind: EventExecuting})
	g.mu.Unlock()

	go g.execute(ctx, p)
}

func (g *Gate) execute(ctx context.Context, p *pendingSend) {
	results := g.run(ctx, p.recipients, p.tmpl, p.actor)

	g.mu.Lock()
	g.state = StateIdle
	g.pending = nil
	g.emit(Event{Kind: EventDone, Results: results, Summary: Summarize(results)})
	g.mu.Unlock()
}

// emit publishes without ever blocking the state machine. The channel is
// buffered generously; a full buffer means no one is listening anymore.
func (g *Gate) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
		log.Warn("gate event dropped, no listener", "kind", ev.Kind)
	}
}
