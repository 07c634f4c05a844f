// Package agentrt is the agent runtime adapter (spec §4.3): it spawns and
// supervises the external AI agent worker as a long-lived NDJSON-over-stdio
// subprocess, sends it run/cancel requests, demultiplexes its event stream
// by runId, and exposes a scheduler.RunFunc-compatible entry point.
//
// The teacher's internal/agent/loop.go calls an LLM provider in-process; this
// package keeps loop.go's surrounding shape (AgentEvent emission, the
// pending-messages-buffered-until-flush idea applied to event delivery,
// sanitization via SanitizeAssistantContent/IsSilentReply in sanitize.go) but
// replaces the inner call with a subprocess, grounded on
// _examples/other_examples/02b92510_wingedpig-trellis__internal-claude-manager.go.go
// (see DESIGN.md).
package agentrt

// requestFrame is one line written to the worker's stdin.
type requestFrame struct {
	Type         string   `json:"type"` // "run" or "cancel"
	RunID        string   `json:"runId"`
	SessionKey   string   `json:"sessionKey,omitempty"`
	SessionID    string   `json:"sessionId,omitempty"`
	SystemPrompt string   `json:"systemPrompt,omitempty"`
	BodyPrefix   string   `json:"bodyPrefix,omitempty"`
	Body         string   `json:"body,omitempty"`
	Thinking     string   `json:"thinking,omitempty"`
	Media        []string `json:"media,omitempty"`
	ModelRef     string   `json:"modelRef,omitempty"`
	TimeoutMs    int      `json:"timeoutMs,omitempty"`
}

// eventFrame is one line read from the worker's stdout. Fields not relevant
// to a given Type are left zero; Type discriminates which ones to read.
type eventFrame struct {
	Type    string `json:"type"`
	RunID   string `json:"runId"`
	Session string `json:"sessionId,omitempty"`

	// tool_start / tool_end
	Tool    string `json:"tool,omitempty"`
	Arg     string `json:"arg,omitempty"`
	Preview string `json:"preview,omitempty"`

	// text
	Delta string `json:"delta,omitempty"`

	// final
	Text  string      `json:"text,omitempty"`
	Usage *UsageFrame `json:"usage,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// UsageFrame mirrors the worker's optional token-usage payload on a final
// event.
type UsageFrame struct {
	InputTokens  int `json:"inputTokens,omitempty"`
	OutputTokens int `json:"outputTokens,omitempty"`
}

const (
	frameTypeRun    = "run"
	frameTypeCancel = "cancel"

	eventSessionStart = "session_start"
	eventToolStart    = "tool_start"
	eventToolEnd      = "tool_end"
	eventText         = "text"
	eventFinal        = "final"
	eventError        = "error"
	eventAgentEnd     = "agent_end"
)

// thinkingCueTokens maps a thinking level to the prompt cue token the
// adapter appends to the body when the worker has no native --thinking flag
// (spec §4.3 "Thinking application").
var thinkingCueTokens = map[string]string{
	"off":     "",
	"minimal": "",
	"low":     "think",
	"medium":  "think hard",
	"high":    "think harder",
	"max":     "ultrathink",
}
