package protocol

// RPC method name constants for the control-plane WebSocket (spec §4.6).

// Core methods — the exact set spec §4.6 names.
const (
	MethodHealth      = "health"
	MethodStatus      = "status"
	MethodSend        = "send"
	MethodAgent       = "agent"
	MethodChatSend    = "chat.send"
	MethodChatHistory = "chat.history"
	MethodConfigGet   = "config.get"
	MethodConfigSet   = "config.set"

	MethodNodesList    = "nodes.list"
	MethodNodesPending = "nodes.pending"
	MethodNodesApprove = "nodes.approve"
	MethodNodesReject  = "nodes.reject"
	MethodNodesInvoke  = "nodes.invoke"

	MethodCronList   = "cron.list"
	MethodCronAdd    = "cron.add"
	MethodCronRemove = "cron.remove"
	MethodCronRunNow = "cron.runNow"

	MethodSystemEvent = "system-event"
	MethodModelsList  = "models.list"

	MethodConnect = "connect"
)

// Ambient methods carried over from the teacher beyond the spec's named
// set, still useful operator/debug surface area and not managed-mode
// Postgres-only (sessions.* operates on internal/sessions.Manager directly).
const (
	MethodChatAbort  = "chat.abort"
	MethodChatInject = "chat.inject"

	MethodSessionsList    = "sessions.list"
	MethodSessionsPreview = "sessions.preview"
	MethodSessionsPatch   = "sessions.patch"
	MethodSessionsDelete  = "sessions.delete"
	MethodSessionsReset   = "sessions.reset"

	MethodChannelsList   = "channels.list"
	MethodChannelsStatus = "channels.status"
	MethodChannelsToggle = "channels.toggle"

	MethodUsageGet     = "usage.get"
	MethodUsageSummary = "usage.summary"

	MethodLogsTail = "logs.tail"
)
