// Package envelope defines the normalized inbound message shape every
// transport adapter produces, and the outbound counterpart outbound delivery
// consumes (spec §3 "Envelope", §4.7).
package envelope

import "time"

// ChatType distinguishes the three conversation shapes a channel may deliver.
type ChatType string

const (
	ChatDirect  ChatType = "direct"
	ChatGroup   ChatType = "group"
	ChatChannel ChatType = "channel"
)

// MediaKind enumerates the attachment kinds a transport may carry (spec §3).
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaAudio    MediaKind = "audio"
	MediaVideo    MediaKind = "video"
	MediaDocument MediaKind = "document"
)

// Media is one inbound or outbound attachment.
type Media struct {
	Kind      MediaKind
	Bytes     []byte // set for in-process payloads
	URL       string // set for bridge/provider-hosted payloads
	MIME      string
	SizeBytes int64
}

// Envelope is the normalized inbound message every transport adapter
// produces before authorization/activation/scheduling runs (spec §3).
type Envelope struct {
	Channel  string // whatsapp | telegram | discord | webchat | node
	Provider string // physical subprovider label, e.g. "whatsapp-web"

	From      string
	ChatType  ChatType
	ChatKey   string
	AccountID string

	Body    string // normalized: timestamp/quote prefixes and markup stripped
	RawBody string

	Media    []Media
	Mentions map[string]struct{}
	ReplyTo  string

	ReceivedAt time.Time
	MessageID  string // provider-stable id, used for dedupe

	// Extra carries adapter-specific routing hints that don't belong in the
	// core model (e.g. Telegram forum message_thread_id) but are needed
	// downstream by session scoping or delivery.
	Extra map[string]string
}

// Mentioned reports whether id was @-addressed in this envelope.
func (e Envelope) Mentioned(id string) bool {
	_, ok := e.Mentions[id]
	return ok
}
