// Package turn owns the client-side state of one request/response cycle
// against the orchestrator backend: the per-agent activity model, the turn
// controller state machine, and the interrupt/resume protocol.
package turn

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"orchat/internal/partial"
)

// SupervisorAgent is the graph node name of the supervising process.
const SupervisorAgent = "supervisor"

// Limits bounds per-agent accumulation and preview rebuild cost. Zero fields
// fall back to defaults.
type Limits struct {
	// BufferCap is the number of trailing runes retained from a delegated
	// agent's output.
	BufferCap int
	// PreviewCap is the maximum rune length of a rendered preview.
	PreviewCap int
	// PreviewInterval rebuilds a rolling preview only once per this many
	// buffered runes, so high token throughput does not thrash the view.
	PreviewInterval int
}

func (l Limits) withDefaults() Limits {
	if l.BufferCap <= 0 {
		l.BufferCap = 8000
	}
	if l.PreviewCap <= 0 {
		l.PreviewCap = 900
	}
	if l.PreviewInterval <= 0 {
		l.PreviewInterval = 240
	}
	return l
}

// AgentState tracks one delegated agent for the duration of a turn.
type AgentState struct {
	ID           string
	Started      bool
	Tools        []string
	Finalized    bool
	PreviewFinal string

	buffer       string
	preview      string
	sincePreview int
}

// Preview returns the frozen final preview once the agent is finalized, else
// the rolling one.
func (s *AgentState) Preview() string {
	if s.Finalized {
		return s.PreviewFinal
	}
	return s.preview
}

// Activity folds the interleaved frame sequence of one turn into a stable,
// de-duplicated per-agent view. It is not safe for concurrent use; the
// controller funnels all mutation through its single stream goroutine.
type Activity struct {
	limits     Limits
	supervisor string

	current string
	agents  map[string]*AgentState
	order   []string

	raw      strings.Builder
	thoughts string
	response string

	processLog []string
	logSeen    map[string]struct{}

	pending *InterruptPayload
	done    bool
}

func NewActivity(supervisor string, limits Limits) *Activity {
	if strings.TrimSpace(supervisor) == "" {
		supervisor = SupervisorAgent
	}
	return &Activity{
		limits:     limits.withDefaults(),
		supervisor: supervisor,
		agents:     make(map[string]*AgentState),
		logSeen:    make(map[string]struct{}),
	}
}

// AgentStart records that agent became the active node. The previously
// active agent is finalized first. Returns true when the visible state
// changed.
func (a *Activity) AgentStart(agent string) bool {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return false
	}
	if strings.HasPrefix(agent, "_") {
		// Internal graph nodes (routers, readers) surface as process-log
		// noise, never as agent entries.
		return a.logStep(agent)
	}

	changed := false
	if a.current != "" && a.current != agent {
		changed = a.finalize(a.current) || changed
	}
	a.current = agent

	if agent == a.supervisor {
		// A new planning pass: the final-answer window reopens and any
		// partially extracted answer is stale.
		a.raw.Reset()
		if a.thoughts != "" || a.response != "" {
			a.thoughts = ""
			a.response = ""
		}
		return true
	}

	st := a.register(agent)
	if !st.Started {
		st.Started = true
		changed = true
	}
	return changed
}

// ToolCall records a tool invocation by agent. Tool names are de-duplicated
// but keep first-seen order. Supervisor tool calls become process-log lines
// only.
func (a *Activity) ToolCall(agent, tool string) bool {
	agent = strings.TrimSpace(agent)
	tool = strings.TrimSpace(tool)
	if tool == "" {
		return false
	}

	if strings.HasPrefix(agent, "_") {
		return a.logStep(fmt.Sprintf("%s → %s", agent, tool))
	}

	changed := false
	if agent != "" && agent != a.current {
		changed = a.finalize(a.current) || changed
		a.current = agent
	}

	if agent == a.supervisor || agent == "" {
		return a.logStep(fmt.Sprintf("%s → %s", agent, tool)) || changed
	}

	st := a.register(agent)
	for _, existing := range st.Tools {
		if existing == tool {
			return changed
		}
	}
	st.Tools = append(st.Tools, tool)
	a.logStep(fmt.Sprintf("%s → %s", agent, tool))
	return true
}

// Token appends streamed text. Supervisor tokens feed the raw JSON
// accumulator and re-run the incremental field extraction; delegated agent
// tokens feed a capped rolling buffer whose preview is rebuilt only every
// PreviewInterval runes.
func (a *Activity) Token(agent, text string) bool {
	if text == "" {
		return false
	}
	agent = strings.TrimSpace(agent)

	if agent == a.supervisor {
		if a.current != a.supervisor {
			// Final-answer window is closed; stale token.
			return false
		}
		a.raw.WriteString(text)
		buf := a.raw.String()
		changed := false
		if v, ok := partial.StringField(buf, "thoughts"); ok && v != a.thoughts {
			a.thoughts = v
			changed = true
		}
		if v, ok := partial.StringField(buf, "response"); ok && v != a.response {
			a.response = v
			changed = true
		}
		return changed
	}
	if agent == "" || strings.HasPrefix(agent, "_") {
		return false
	}

	st := a.register(agent)
	if st.Finalized {
		return false
	}
	st.buffer = capTail(st.buffer+text, a.limits.BufferCap)
	st.sincePreview += utf8.RuneCountInString(text)
	if st.preview == "" || st.sincePreview >= a.limits.PreviewInterval {
		st.preview = makePreview(st.buffer, a.limits.PreviewCap)
		st.sincePreview = 0
		return true
	}
	return false
}

// Interrupt freezes the turn pending a human decision. No further frames
// from the current stream are applied after this.
func (a *Activity) Interrupt(kind, content string) {
	a.finalize(a.current)
	if strings.TrimSpace(kind) == "" {
		kind = InterruptReviewRequired
	}
	a.pending = &InterruptPayload{Kind: kind, Content: content}
}

// ClearInterrupt drops the pending payload; called optimistically the moment
// a resume request is dispatched.
func (a *Activity) ClearInterrupt() {
	a.pending = nil
}

// UpstreamError surfaces an error frame as the assistant's visible content.
// The turn is not terminal yet; a done frame may still follow.
func (a *Activity) UpstreamError(message string) {
	a.finalize(a.current)
	message = strings.TrimSpace(message)
	if message == "" {
		message = "the assistant reported an error"
	}
	a.response = message
}

// Done finalizes the turn. The whole-object parse of the accumulated JSON is
// authoritative once the stream has completed: it replaces whatever the
// incremental heuristic extracted, correcting any value it latched onto
// mid-stream.
func (a *Activity) Done() {
	a.finalize(a.current)
	raw := a.raw.String()
	if doc, ok := partial.ParseDocument(raw); ok {
		if doc.Response != "" || a.response == "" {
			a.response = doc.Response
			a.thoughts = doc.Thoughts
		}
	} else if a.response == "" {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			a.response = trimmed
		}
	}
	a.done = true
}

// FallbackResponse sets a visible failure message, but never over content
// that was already rendered.
func (a *Activity) FallbackResponse(message string) {
	if a.response == "" {
		a.response = message
	}
}

// HasVisibleContent reports whether anything user-facing was rendered.
func (a *Activity) HasVisibleContent() bool {
	if a.response != "" || a.thoughts != "" || len(a.processLog) > 0 {
		return true
	}
	return len(a.order) > 0
}

func (a *Activity) register(agent string) *AgentState {
	st, ok := a.agents[agent]
	if !ok {
		st = &AgentState{ID: agent}
		a.agents[agent] = st
		a.order = append(a.order, agent)
	}
	return st
}

func (a *Activity) finalize(agent string) bool {
	if agent == "" || agent == a.supervisor {
		return false
	}
	st, ok := a.agents[agent]
	if !ok || st.Finalized {
		return false
	}
	st.Finalized = true
	st.PreviewFinal = makePreview(st.buffer, a.limits.PreviewCap)
	return true
}

// logStep records a human-readable process step, de-duplicated by exact text
// in first-seen order (the same invocation may be reported across retries).
func (a *Activity) logStep(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if _, seen := a.logSeen[line]; seen {
		return false
	}
	a.logSeen[line] = struct{}{}
	a.processLog = append(a.processLog, line)
	return true
}

func capTail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[len(runes)-limit:])
}
