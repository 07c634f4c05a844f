// Package store holds small persistence interfaces used by the transport
// adapters. It is intentionally narrow: durable, replicated, multi-tenant
// storage is out of scope — state is local JSON/JSONL per the single-operator
// deployment model — so this package carries only what a standalone Gateway
// needs.
package store

// PairingStore tracks per-sender DM/group pairing codes for channels whose
// dmPolicy/groupPolicy is "pairing": an unknown sender is issued a short code
// and held unapproved until the operator approves it out of band.
//
// This is distinct from internal/bridge.PairStore, which pairs companion
// node devices (menubar/iOS/Android) rather than chat-platform senders.
type PairingStore interface {
	// IsPaired reports whether senderID has an approved pairing record on
	// the given channel.
	IsPaired(senderID, channel string) bool

	// RequestPairing issues (or re-issues) a pairing code for senderID on
	// channel/chatID. kind distinguishes the request context (e.g. "default"
	// for a DM, "group" for a group chat) for operator-facing display.
	RequestPairing(senderID, channel, chatID, kind string) (code string, err error)
}
