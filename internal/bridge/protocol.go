// Package bridge implements spec §4.5, the paired-node bridge: a TCP
// listener advertised over the LAN that speaks line-delimited JSON frames
// to companion-device "nodes" (phones, desktops) for pairing, heartbeat
// keepalive, and bidirectional command invocation.
//
// The NDJSON-over-a-stream framing (bufio.Scanner, one JSON object per
// line) reuses the shape internal/agentrt uses for the agent worker's
// stdio pipe, applied here to a net.Conn instead of a subprocess pipe —
// grounded on the same
// _examples/other_examples/02b92510_wingedpig-trellis__internal-claude-manager.go.go
// readLoop/writeStdin idiom (see DESIGN.md).
package bridge

import "encoding/json"

// FrameType discriminates the bridge wire protocol (spec §4.5).
const (
	FrameHello       = "hello"
	FramePair        = "pair"
	FrameAuthOK      = "auth_ok"
	FrameAuthError   = "auth_error"
	FrameNotPaired   = "not_paired"
	FrameInvoke      = "invoke"
	FrameInvokeResult = "invoke_result"
	FrameEvent       = "event"
	FramePing        = "ping"
	FramePong        = "pong"
)

// Frame is the envelope for every line on the wire; Type selects which
// other fields are populated.
type Frame struct {
	Type string `json:"type"`

	// hello
	NodeID          string   `json:"nodeId,omitempty"`
	DisplayName     string   `json:"displayName,omitempty"`
	Token           string   `json:"token,omitempty"`
	Platform        string   `json:"platform,omitempty"`
	Version         string   `json:"version,omitempty"`
	DeviceFamily    string   `json:"deviceFamily,omitempty"`
	ModelIdentifier string   `json:"modelIdentifier,omitempty"`
	Caps            []string `json:"caps,omitempty"`
	Commands        []string `json:"commands,omitempty"`

	// auth_error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// invoke / invoke_result
	ID         string          `json:"id,omitempty"`
	Command    string          `json:"command,omitempty"`
	ParamsJSON json.RawMessage `json:"paramsJSON,omitempty"`
	OK         bool            `json:"ok,omitempty"`
	ResultJSON json.RawMessage `json:"resultJSON,omitempty"`
	Error      string          `json:"error,omitempty"`

	// event
	Event       string          `json:"event,omitempty"`
	PayloadJSON json.RawMessage `json:"payloadJSON,omitempty"`
}
