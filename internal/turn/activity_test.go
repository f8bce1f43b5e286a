package turn

import (
	"reflect"
	"strings"
	"testing"
)

func TestActivityTwoAgentsLifecycle(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart("search_agent")
	act.ToolCall("search_agent", "web_search")
	act.Token("search_agent", "hello")
	act.AgentStart("email_agent")
	act.Done()

	snap := act.Snapshot()
	if len(snap.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d: %#v", len(snap.Agents), snap.Agents)
	}

	search := snap.Agents[0]
	if search.ID != "search_agent" || !search.Finalized {
		t.Fatalf("expected finalized search_agent first, got %#v", search)
	}
	if !reflect.DeepEqual(search.Tools, []string{"web_search"}) {
		t.Fatalf("unexpected tools: %#v", search.Tools)
	}
	if strings.TrimSpace(search.Preview) == "" {
		t.Fatalf("expected non-empty preview for search_agent")
	}

	email := snap.Agents[1]
	if email.ID != "email_agent" || len(email.Tools) != 0 {
		t.Fatalf("expected email_agent with no tools, got %#v", email)
	}
}

func TestActivityToolDeduplicationKeepsFirstSeenOrder(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart("email_agent")
	act.ToolCall("email_agent", "draft_email")
	act.ToolCall("email_agent", "send_email")
	act.ToolCall("email_agent", "draft_email")

	snap := act.Snapshot()
	if len(snap.Agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(snap.Agents))
	}
	want := []string{"draft_email", "send_email"}
	if !reflect.DeepEqual(snap.Agents[0].Tools, want) {
		t.Fatalf("tools %#v, want %#v", snap.Agents[0].Tools, want)
	}
}

func TestActivityAgentVisibleWithoutTools(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart("calendar_agent")
	snap := act.Snapshot()
	if len(snap.Agents) != 1 || snap.Agents[0].ID != "calendar_agent" {
		t.Fatalf("agent_start alone should register the agent, got %#v", snap.Agents)
	}

	// A tool call for an unseen agent also registers it.
	act.ToolCall("sheet_agent", "read_sheet")
	snap = act.Snapshot()
	if len(snap.Agents) != 2 || snap.Agents[1].ID != "sheet_agent" {
		t.Fatalf("tool_call should lazily register, got %#v", snap.Agents)
	}
}

func TestActivitySupervisorStreamsAnswer(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart(SupervisorAgent)

	full := `{"thoughts":"planning the reply","response":"All done!"}`
	for i := 0; i < len(full); i++ {
		act.Token(SupervisorAgent, full[i:i+1])
	}

	snap := act.Snapshot()
	if snap.Thoughts != "planning the reply" {
		t.Fatalf("thoughts %q", snap.Thoughts)
	}
	if snap.Response != "All done!" {
		t.Fatalf("response %q", snap.Response)
	}

	act.Done()
	snap = act.Snapshot()
	if !snap.Done || snap.Response != "All done!" {
		t.Fatalf("done snapshot %#v", snap)
	}
}

func TestActivitySupervisorRestartResetsAnswer(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart(SupervisorAgent)
	act.Token(SupervisorAgent, `{"response":"first pass`)
	if snap := act.Snapshot(); snap.Response == "" {
		t.Fatalf("expected partial response")
	}

	act.AgentStart("search_agent")
	act.AgentStart(SupervisorAgent)
	if snap := act.Snapshot(); snap.Response != "" || snap.Thoughts != "" {
		t.Fatalf("new planning pass should clear the answer, got %#v", snap)
	}

	act.Token(SupervisorAgent, `{"thoughts":"t","response":"second pass"}`)
	act.Done()
	if snap := act.Snapshot(); snap.Response != "second pass" {
		t.Fatalf("response %q", snap.Response)
	}
}

func TestActivityDoneFallbackParsesWholeObject(t *testing.T) {
	t.Parallel()

	// Token text that never yielded an incremental extraction, e.g. if the
	// whole object arrived in one chunk after the window check.
	act := NewActivity("", Limits{})
	act.AgentStart(SupervisorAgent)
	act.raw.WriteString(`{"thoughts":"t1","response":"r1"}`)
	act.Done()

	snap := act.Snapshot()
	if snap.Response != "r1" || snap.Thoughts != "t1" {
		t.Fatalf("fallback parse failed: %#v", snap)
	}
}

func TestActivityDoneOverridesHeuristicExtraction(t *testing.T) {
	t.Parallel()

	// The incremental extractor latches onto a same-named key inside a nested
	// object; the whole-object parse on completion is authoritative and must
	// replace it.
	act := NewActivity("", Limits{})
	act.AgentStart(SupervisorAgent)

	full := `{"meta":{"response":"nested"},"response":"real","thoughts":"t"}`
	for i := 0; i < len(full); i++ {
		act.Token(SupervisorAgent, full[i:i+1])
	}
	if snap := act.Snapshot(); snap.Response != "nested" {
		t.Fatalf("expected the mid-stream heuristic value, got %q", snap.Response)
	}

	act.Done()
	snap := act.Snapshot()
	if snap.Response != "real" {
		t.Fatalf("after done, response %q, want %q", snap.Response, "real")
	}
	if snap.Thoughts != "t" {
		t.Fatalf("after done, thoughts %q, want %q", snap.Thoughts, "t")
	}
}

func TestActivityInterruptFreezesState(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart("email_agent")
	act.Token("email_agent", "drafting...")
	act.Interrupt("", "Send this email to Bob?")

	snap := act.Snapshot()
	if snap.Interrupt == nil {
		t.Fatalf("expected pending interrupt")
	}
	if snap.Interrupt.Kind != InterruptReviewRequired {
		t.Fatalf("kind %q", snap.Interrupt.Kind)
	}
	if snap.Interrupt.Content != "Send this email to Bob?" {
		t.Fatalf("content %q", snap.Interrupt.Content)
	}
	if !snap.Agents[0].Finalized {
		t.Fatalf("current agent should be finalized on interrupt")
	}

	frozen := snap.Agents[0].Preview
	act.ClearInterrupt()
	snap = act.Snapshot()
	if snap.Interrupt != nil {
		t.Fatalf("interrupt should be cleared")
	}
	if snap.Agents[0].Preview != frozen {
		t.Fatalf("finalized preview changed: %q vs %q", snap.Agents[0].Preview, frozen)
	}
}

func TestActivityFinalizedPreviewImmutable(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart("search_agent")
	act.Token("search_agent", "early output")
	act.AgentStart("email_agent")

	frozen := act.Snapshot().Agents[0].Preview
	act.Token("search_agent", " late stragglers")
	if got := act.Snapshot().Agents[0].Preview; got != frozen {
		t.Fatalf("finalized preview mutated: %q -> %q", frozen, got)
	}
}

func TestActivityUpstreamErrorSurvivesDone(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart("search_agent")
	act.UpstreamError("model timed out")
	act.Done()

	snap := act.Snapshot()
	if snap.Response != "model timed out" {
		t.Fatalf("response %q", snap.Response)
	}
}

func TestActivityFallbackResponseNeverOverwrites(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart(SupervisorAgent)
	act.Token(SupervisorAgent, `{"response":"kept"}`)
	act.FallbackResponse("generic failure")
	if got := act.Snapshot().Response; got != "kept" {
		t.Fatalf("response %q", got)
	}
}

func TestActivityProcessLogDeduplicated(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart(SupervisorAgent)
	act.ToolCall(SupervisorAgent, "transfer_to_search_agent")
	act.ToolCall(SupervisorAgent, "transfer_to_search_agent")
	act.ToolCall(SupervisorAgent, "transfer_to_email_agent")

	snap := act.Snapshot()
	want := []string{
		"supervisor → transfer_to_search_agent",
		"supervisor → transfer_to_email_agent",
	}
	if !reflect.DeepEqual(snap.ProcessLog, want) {
		t.Fatalf("process log %#v, want %#v", snap.ProcessLog, want)
	}
	if len(snap.Agents) != 0 {
		t.Fatalf("supervisor tool calls must not create agent entries: %#v", snap.Agents)
	}
}

func TestActivityInternalNodesAreNoise(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{})
	act.AgentStart("_read")
	act.Token("_read", "internal traffic")

	snap := act.Snapshot()
	if len(snap.Agents) != 0 {
		t.Fatalf("internal nodes must not become agents: %#v", snap.Agents)
	}
	if !reflect.DeepEqual(snap.ProcessLog, []string{"_read"}) {
		t.Fatalf("process log %#v", snap.ProcessLog)
	}
}

func TestActivityBufferCapBoundsMemory(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{BufferCap: 64, PreviewCap: 32, PreviewInterval: 1})
	act.AgentStart("deep_research_agent")
	for i := 0; i < 100; i++ {
		act.Token("deep_research_agent", "0123456789")
	}

	st := act.agents["deep_research_agent"]
	if len(st.buffer) > 64 {
		t.Fatalf("buffer grew past cap: %d", len(st.buffer))
	}
	snap := act.Snapshot()
	if got := len([]rune(snap.Agents[0].Preview)); got > 33 {
		t.Fatalf("preview grew past cap: %d runes", got)
	}
	if !strings.HasSuffix(snap.Agents[0].Preview, "…") {
		t.Fatalf("expected ellipsis marker, got %q", snap.Agents[0].Preview)
	}
}

func TestActivityPreviewRebuildThrottled(t *testing.T) {
	t.Parallel()

	act := NewActivity("", Limits{PreviewInterval: 100})
	act.AgentStart("search_agent")

	if changed := act.Token("search_agent", "first"); !changed {
		t.Fatalf("first token should build the initial preview")
	}
	if changed := act.Token("search_agent", "more"); changed {
		t.Fatalf("second token under the interval should not rebuild")
	}
	if got := act.Snapshot().Agents[0].Preview; got != "first" {
		t.Fatalf("preview %q, want %q", got, "first")
	}

	if changed := act.Token("search_agent", strings.Repeat("x", 120)); !changed {
		t.Fatalf("crossing the interval should rebuild the preview")
	}
	if got := act.Snapshot().Agents[0].Preview; !strings.Contains(got, "x") {
		t.Fatalf("preview not rebuilt: %q", got)
	}
}
