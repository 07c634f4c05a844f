package sessions

import (
	"encoding/json"
	"time"
)

// ThinkingLevel is the session-pinned reasoning-effort directive.
type ThinkingLevel string

const (
	ThinkingOff     ThinkingLevel = "off"
	ThinkingMinimal ThinkingLevel = "minimal"
	ThinkingLow     ThinkingLevel = "low"
	ThinkingMedium  ThinkingLevel = "medium"
	ThinkingHigh    ThinkingLevel = "high"
	ThinkingMax     ThinkingLevel = "max"
)

// VerboseLevel controls tool-call coalescing visibility (§4.3).
type VerboseLevel string

const (
	VerboseOff  VerboseLevel = "off"
	VerboseOn   VerboseLevel = "on"
	VerboseFull VerboseLevel = "full"
)

// QueueMode overrides the channel/global queue-vs-interrupt default (§4.2).
type QueueMode string

const (
	QueueModeInherit   QueueMode = ""
	QueueModeQueue     QueueMode = "queue"
	QueueModeInterrupt QueueMode = "interrupt"
)

// Activation is the group-only reply-eligibility policy (§4.1).
type Activation string

const (
	ActivationMention Activation = "mention"
	ActivationAlways  Activation = "always"
)

// Session is the persistent per-conversation state described in spec §3.
//
// Unknown JSON fields encountered on load are preserved verbatim across a
// read-modify-write cycle (§6 "Persisted state compatibility") via extra.
type Session struct {
	SessionKey string `json:"sessionKey"`
	SessionID  string `json:"sessionId,omitempty"`

	LastChannel  string `json:"lastChannel,omitempty"`
	LastProvider string `json:"lastProvider,omitempty"`
	LastTo       string `json:"lastTo,omitempty"`

	ThinkingLevel ThinkingLevel `json:"thinkingLevel,omitempty"`
	Verbose       VerboseLevel  `json:"verbose,omitempty"`
	QueueMode     QueueMode     `json:"queueMode,omitempty"`
	Activation    Activation    `json:"activation,omitempty"`

	Aborted bool `json:"aborted,omitempty"`

	// UpdatedAt is wall-clock milliseconds. Invariant: never moves backward —
	// any read-modify-write cycle merges by taking the max of the in-memory
	// intended value and the on-disk value before flushing (see Manager.save).
	UpdatedAt int64 `json:"updatedAt"`
	CreatedAt int64 `json:"createdAt"`

	ContextUsed int  `json:"contextUsed,omitempty"`
	Primed      bool `json:"primed,omitempty"`

	// extra holds JSON fields this struct doesn't model, so that a
	// read-modify-write cycle never drops data written by another version.
	extra map[string]json.RawMessage
}

// touch advances UpdatedAt to the current time, never regressing it.
func (s *Session) touch(nowMs int64) {
	if nowMs > s.UpdatedAt {
		s.UpdatedAt = nowMs
	}
}

// mergeOnDisk folds the max(updatedAt) and any fields present on disk but not
// in memory into s, implementing the updatedAt-monotonicity merge invariant
// for concurrent writers (spec §3 invariant 2).
func (s *Session) mergeOnDisk(onDisk *Session) {
	if onDisk == nil {
		return
	}
	if onDisk.UpdatedAt > s.UpdatedAt {
		s.UpdatedAt = onDisk.UpdatedAt
	}
	if s.CreatedAt == 0 {
		s.CreatedAt = onDisk.CreatedAt
	}
	if s.extra == nil {
		s.extra = onDisk.extra
	} else {
		for k, v := range onDisk.extra {
			if _, ok := s.extra[k]; !ok {
				s.extra[k] = v
			}
		}
	}
}

// knownFieldNames lists every JSON key the typed struct above models, so
// MarshalJSON/UnmarshalJSON can split "known" from "extra" fields.
var knownFieldNames = map[string]bool{
	"sessionKey": true, "sessionId": true,
	"lastChannel": true, "lastProvider": true, "lastTo": true,
	"thinkingLevel": true, "verbose": true, "queueMode": true, "activation": true,
	"aborted": true, "updatedAt": true, "createdAt": true,
	"contextUsed": true, "primed": true,
}

// MarshalJSON merges the typed fields with any preserved unknown fields.
func (s Session) MarshalJSON() ([]byte, error) {
	type alias Session
	known, err := json.Marshal(alias(s))
	if err != nil {
		return nil, err
	}

	if len(s.extra) == 0 {
		return known, nil
	}

	merged := make(map[string]json.RawMessage, len(s.extra)+8)
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return nil, err
	}
	for k, v := range s.extra {
		merged[k] = v
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON populates typed fields and stashes anything else in extra.
func (s *Session) UnmarshalJSON(data []byte) error {
	type alias Session
	if err := json.Unmarshal(data, (*alias)(s)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]json.RawMessage)
	for k, v := range raw {
		if !knownFieldNames[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		s.extra = extra
	}
	return nil
}

// NewSession constructs a fresh Session lazily created on first authorized
// inbound message (spec §3 Lifecycles).
func NewSession(key string, now time.Time) *Session {
	ms := now.UnixMilli()
	return &Session{
		SessionKey: key,
		CreatedAt:  ms,
		UpdatedAt:  ms,
	}
}
