package protocol

// WebSocket event names pushed from server to client (spec §4.6).
const (
	EventChat           = "chat"
	EventProvider       = "provider"
	EventPresence       = "presence"
	EventPairingPending = "pairing.pending"
	EventLog            = "log"

	EventHealth   = "health"
	EventCron     = "cron"
	EventTick     = "tick"
	EventShutdown = "shutdown"

	// Cache invalidation events (internal, never forwarded to WS clients).
	EventCacheInvalidate = "cache.invalidate"
)

// Chat event states (in a "chat" payload's state field, spec §4.6 "chat {
// runId, state, text?, toolEvent?, usage? }").
const (
	ChatStateStarted   = "started"
	ChatStateDelta     = "delta"
	ChatStateToolStart = "tool_start"
	ChatStateToolEnd   = "tool_end"
	ChatStateFinal     = "final"
	ChatStateError     = "error"
)
