package protocol

import "encoding/json"

// ProtocolVersion is bumped when a breaking change is made to the request,
// response, or event frame shapes below.
const ProtocolVersion = 1

// RequestFrame is a client->server RPC call (spec §4.6): `{id, method,
// params}`. Id is caller-chosen and unique per socket.
type RequestFrame struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame is the server's reply to a RequestFrame: `{id, ok,
// result?|error?}`.
type ResponseFrame struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload carries a machine-readable code alongside a human message,
// e.g. "UNKNOWN_METHOD", "UNAUTHORIZED", "INVALID_REQUEST", "UNAVAILABLE".
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// EventFrame is a server-pushed event: `{event, payload}`.
type EventFrame struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// NewEvent builds an EventFrame for the given event name and payload value.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Event: name, Payload: payload}
}

func NewError(code, message string) *ErrorPayload {
	return &ErrorPayload{Code: code, Message: message}
}
