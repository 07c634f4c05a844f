// Package activation implements spec §4.1: allowlist/stop-word/mention
// authorization and the slash-directive parser, shared by every transport
// adapter instead of being reimplemented per channel (generalized from the
// teacher's per-channel BaseChannel.IsAllowed/CheckPolicy in
// internal/channels/channel.go).
package activation

import "strings"

// IsAllowed reports whether senderID matches allowList. Supports the
// compound "id|username" identifier form used by Telegram-style channels.
// An empty allowList means every sender is allowed; "*" matches any sender.
func IsAllowed(allowList []string, senderID string) bool {
	if len(allowList) == 0 {
		return true
	}

	idPart, userPart := splitCompound(senderID)

	for _, allowed := range allowList {
		if allowed == "*" {
			return true
		}
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID, allowedUser := splitCompound(trimmed)

		if senderID == allowed || senderID == trimmed ||
			idPart == allowed || idPart == trimmed || idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == allowed || userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}
	return false
}

func splitCompound(id string) (idPart, userPart string) {
	if idx := strings.Index(id, "|"); idx > 0 {
		return id[:idx], id[idx+1:]
	}
	return id, ""
}

// stopWords are the exact (post-normalization) bodies that abort the current
// run in flight and set Session.aborted (spec §4.1(b)).
var stopWords = map[string]bool{
	"stop": true, "esc": true, "abort": true, "wait": true, "exit": true,
}

// IsStopWord reports whether body, trimmed and case-folded, is a stop word.
func IsStopWord(body string) bool {
	return stopWords[strings.ToLower(strings.TrimSpace(body))]
}

// GroupDecision holds the inputs needed to evaluate group activation
// (spec §4.1: "authorization additionally requires either the bot being
// @-mentioned OR activation=always, OR a per-group requireMention=false").
type GroupDecision struct {
	Allowlisted    bool // group chatKey matched the group allowlist
	Mentioned      bool // sender @-mentioned one of the bot's own identifiers
	ActivationMode string // "mention" | "always" ("" defaults to "mention")
	RequireMention bool   // config default true unless explicitly set false
}

// Eligible reports whether a group message should be considered for reply.
// Even when the group is not allowlisted, a direct @-mention of the bot is
// still honored for that single turn (spec §4.1).
func (d GroupDecision) Eligible() bool {
	if d.Mentioned {
		return true
	}
	if !d.Allowlisted {
		return false
	}
	if d.ActivationMode == "always" {
		return true
	}
	if !d.RequireMention {
		return true
	}
	return false
}
