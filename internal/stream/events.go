package stream

import (
	"encoding/json"
	"strings"
)

// Event names emitted by the orchestrator backend.
const (
	EventAgentStart = "agent_start"
	EventToolCall   = "tool_call"
	EventToken      = "token"
	EventInterrupt  = "interrupt"
	EventError      = "error"
	EventDone       = "done"
)

type AgentStart struct {
	Agent string `json:"agent"`
}

type Token struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

type ToolCall struct {
	Agent string          `json:"agent"`
	Tool  string          `json:"tool"`
	Args  json.RawMessage `json:"args,omitempty"`
}

type Interrupt struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

type ErrorEvent struct {
	Error string `json:"error"`
}

// Payload decoding is best effort: a frame whose data is not the JSON shape
// we expect is normal (the done frame carries the bare string "success"), so
// decoders degrade to the raw text instead of failing the stream.

func DecodeAgentStart(data string) AgentStart {
	var v AgentStart
	if err := json.Unmarshal([]byte(data), &v); err != nil || v.Agent == "" {
		v.Agent = strings.TrimSpace(data)
	}
	return v
}

func DecodeToken(data string) Token {
	var v Token
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return Token{Text: data}
	}
	return v
}

func DecodeToolCall(data string) ToolCall {
	var v ToolCall
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return ToolCall{Tool: strings.TrimSpace(data)}
	}
	return v
}

func DecodeInterrupt(data string) Interrupt {
	var v Interrupt
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return Interrupt{Payload: data}
	}
	return v
}

// DecodeError returns the upstream error message from an error frame.
func DecodeError(data string) string {
	var v ErrorEvent
	if err := json.Unmarshal([]byte(data), &v); err != nil || v.Error == "" {
		return strings.TrimSpace(data)
	}
	return v.Error
}
