package turn

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"

	"orchat/internal/api"
	"orchat/internal/applog"
	"orchat/internal/stream"
)

// Phase is the turn controller's state machine position.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseSending          Phase = "sending"
	PhaseStreaming        Phase = "streaming"
	PhaseAwaitingDecision Phase = "awaiting_decision"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
	// PhaseAborted is a caller-initiated cancellation. It is a distinct
	// outcome, never a failure, and never overwrites rendered content.
	PhaseAborted Phase = "aborted"
)

var (
	ErrTurnInFlight       = errors.New("a turn is already in flight")
	ErrNoPendingInterrupt = errors.New("no suspended turn to resume")
	ErrEmptyMessage       = errors.New("message is required")
)

// Update is pushed to the presentation layer whenever the visible state of
// the active turn changes. Snapshot is a value copy; readers never touch the
// live model.
type Update struct {
	Phase    Phase
	TurnID   string
	Snapshot Snapshot
	Err      error
}

// Options configures a Controller.
type Options struct {
	// ThreadID is the opaque conversation identifier; a fresh UUID when
	// empty.
	ThreadID string
	// Supervisor overrides the supervising process node name.
	Supervisor string
	Limits     Limits
	Logger     *applog.Logger
}

// Controller drives turns against the backend: it opens the stream, decodes
// frames, folds them into the Activity model, and publishes snapshots. At
// most one turn is in flight at a time.
//
// All model mutation happens on the single goroutine spawned per stream;
// the mutex only guards the phase machine and turn identity.
type Controller struct {
	client     *api.Client
	log        *applog.Logger
	limits     Limits
	supervisor string

	updates chan Update

	mu       sync.Mutex
	phase    Phase
	threadID string
	turnID   string
	activity *Activity
	cancel   context.CancelFunc
}

func NewController(client *api.Client, opts Options) *Controller {
	threadID := strings.TrimSpace(opts.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	supervisor := strings.TrimSpace(opts.Supervisor)
	if supervisor == "" {
		supervisor = SupervisorAgent
	}
	return &Controller{
		client:     client,
		log:        opts.Logger,
		limits:     opts.Limits.withDefaults(),
		supervisor: supervisor,
		updates:    make(chan Update, 128),
		phase:      PhaseIdle,
		threadID:   threadID,
	}
}

// Updates is the stream of view-model snapshots for the presentation layer.
func (c *Controller) Updates() <-chan Update {
	return c.updates
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *Controller) ThreadID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// TurnID returns the assistant-turn identifier of the current (or last)
// turn. Stable across an interrupt/resume pause.
func (c *Controller) TurnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.turnID
}

// StartTurn submits a new question. Rejected while another turn is in
// flight (sending, streaming, or awaiting a decision).
func (c *Controller) StartTurn(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.inFlightLocked() {
		c.mu.Unlock()
		return ErrTurnInFlight
	}
	c.turnID = uuid.NewString()
	c.activity = NewActivity(c.supervisor, c.limits)
	c.phase = PhaseSending
	runCtx, cancel := c.newRunContextLocked(ctx)
	req := api.ChatRequest{Message: &question, ThreadID: c.threadID}
	c.mu.Unlock()

	c.log.Logf(applog.KindTurn, "start turn=%s thread=%s", c.TurnID(), c.ThreadID())
	c.publish(nil)
	go c.run(runCtx, cancel, req)
	return nil
}

// ResumeTurn re-enters a suspended turn with the human's decision. The
// assistant-turn identifier and all accumulated activity are retained; the
// pending interrupt is cleared optimistically before the request is sent.
func (c *Controller) ResumeTurn(ctx context.Context, decision string) error {
	decision = strings.TrimSpace(decision)
	if decision == "" {
		decision = ResumeApprove
	}

	c.mu.Lock()
	if c.phase != PhaseAwaitingDecision || c.activity == nil {
		c.mu.Unlock()
		return ErrNoPendingInterrupt
	}
	c.activity.ClearInterrupt()
	c.phase = PhaseSending
	runCtx, cancel := c.newRunContextLocked(ctx)
	req := api.ChatRequest{ResumeAction: &decision, ThreadID: c.threadID}
	c.mu.Unlock()

	c.log.Logf(applog.KindTurn, "resume turn=%s action=%s", c.TurnID(), applog.Preview(decision, 60))
	c.publish(nil)
	go c.run(runCtx, cancel, req)
	return nil
}

// Cancel signals the in-flight stream to abort. Valid during sending or
// streaming; a no-op otherwise. Cancellation is cooperative: a frame already
// decoded is still applied, but no further reads occur.
func (c *Controller) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	active := c.phase == PhaseSending || c.phase == PhaseStreaming
	c.mu.Unlock()
	if active && cancel != nil {
		cancel()
	}
}

func (c *Controller) inFlightLocked() bool {
	switch c.phase {
	case PhaseSending, PhaseStreaming, PhaseAwaitingDecision:
		return true
	}
	return false
}

func (c *Controller) newRunContextLocked(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	return runCtx, cancel
}

// run owns the Activity model until the stream stops. It is the only writer.
func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, req api.ChatRequest) {
	defer cancel()

	body, err := c.client.OpenStream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			c.settle(PhaseAborted, nil)
			return
		}
		c.log.Logf(applog.KindError, "open stream: %v", err)
		c.failTransport(err)
		return
	}
	defer body.Close()

	c.setPhase(PhaseStreaming)
	c.publish(nil)

	dec := &stream.Decoder{}
	buf := make([]byte, 4096)
	sawDone := false
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range dec.Feed(string(buf[:n])) {
				switch c.apply(frame) {
				case outcomeSuspend:
					c.settle(PhaseAwaitingDecision, nil)
					return
				case outcomeDone:
					sawDone = true
				}
			}
		}
		if sawDone {
			c.settle(PhaseCompleted, nil)
			return
		}
		if readErr == nil {
			continue
		}
		for _, frame := range dec.Flush() {
			switch c.apply(frame) {
			case outcomeSuspend:
				c.settle(PhaseAwaitingDecision, nil)
				return
			case outcomeDone:
				sawDone = true
			}
		}
		if sawDone {
			c.settle(PhaseCompleted, nil)
			return
		}
		if ctx.Err() != nil {
			// Caller-initiated abort; keep whatever was rendered.
			c.settle(PhaseAborted, nil)
			return
		}
		if errors.Is(readErr, io.EOF) {
			// Stream ended without a done frame; the upstream error frame
			// (if any) already set the visible content.
			c.failTransport(errors.New("stream ended before done"))
			return
		}
		c.log.Logf(applog.KindError, "read stream: %v", readErr)
		c.failTransport(readErr)
		return
	}
}

type applyOutcome int

const (
	outcomeContinue applyOutcome = iota
	outcomeSuspend
	outcomeDone
)

func (c *Controller) apply(frame stream.Frame) applyOutcome {
	c.log.Logf(applog.KindFrame, "%s %s", frame.Event, applog.Preview(frame.Data, 120))

	act := c.activity
	changed := false
	switch frame.Event {
	case stream.EventAgentStart:
		changed = act.AgentStart(stream.DecodeAgentStart(frame.Data).Agent)
	case stream.EventToolCall:
		ev := stream.DecodeToolCall(frame.Data)
		changed = act.ToolCall(ev.Agent, ev.Tool)
	case stream.EventToken:
		ev := stream.DecodeToken(frame.Data)
		changed = act.Token(ev.Agent, ev.Text)
	case stream.EventInterrupt:
		ev := stream.DecodeInterrupt(frame.Data)
		act.Interrupt(ev.Type, ev.Payload)
		return outcomeSuspend
	case stream.EventError:
		act.UpstreamError(stream.DecodeError(frame.Data))
		changed = true
	case stream.EventDone:
		act.Done()
		return outcomeDone
	default:
		// Unclassified frame; tolerated without failing.
	}
	if changed {
		c.publish(nil)
	}
	return outcomeContinue
}

// failTransport marks the turn failed. The generic message appears only when
// nothing user-facing was rendered; partial output stays as-is.
func (c *Controller) failTransport(err error) {
	if !c.activity.HasVisibleContent() {
		c.activity.FallbackResponse("Sorry, something went wrong talking to the assistant.")
	}
	c.settle(PhaseFailed, err)
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
}

// settle moves the turn to a terminal (or suspended) phase and publishes the
// final snapshot for this stream. The snapshot is built before the new phase
// is observable: once phase reads as awaiting_decision a caller may resume,
// which spawns a new goroutine writing to the same Activity.
func (c *Controller) settle(p Phase, err error) {
	c.mu.Lock()
	update := Update{Phase: p, TurnID: c.turnID, Err: err}
	if c.activity != nil {
		update.Snapshot = c.activity.Snapshot()
	}
	c.phase = p
	c.cancel = nil
	c.mu.Unlock()
	c.log.Logf(applog.KindTurn, "turn=%s phase=%s", update.TurnID, p)
	c.updates <- update
}

func (c *Controller) publish(err error) {
	c.mu.Lock()
	update := Update{
		Phase:  c.phase,
		TurnID: c.turnID,
		Err:    err,
	}
	act := c.activity
	c.mu.Unlock()
	if act != nil {
		update.Snapshot = act.Snapshot()
	}
	c.updates <- update
}
