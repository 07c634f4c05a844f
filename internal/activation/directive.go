package activation

import (
	"regexp"
	"strings"
)

// Kind enumerates the slash directives recognized at message start
// (spec §4.1).
type Kind string

const (
	KindThink   Kind = "think"
	KindVerbose Kind = "verbose"
	KindQueue   Kind = "queue"
	KindNew     Kind = "new"
	KindModel   Kind = "model"
	KindStatus  Kind = "status"
	KindRestart Kind = "restart"
)

// Directive is a parsed slash command plus whatever text follows it.
// When Rest is non-empty the directive is "inline" (modifies only the
// current turn); when Rest is empty it is "pin-only" (mutates session
// state and produces a confirmation reply, per spec §4.1).
type Directive struct {
	Kind  Kind
	Value string // level/mode/ref argument, lowercased
	Rest  string // remaining text after the directive token, trimmed
}

// Inline reports whether other text follows the directive on the same
// message (pins only the current turn instead of the session).
func (d Directive) Inline() bool { return d.Rest != "" }

var directivePattern = regexp.MustCompile(
	`(?i)^/(think|verbose|queue|new|model|status|restart)(?:[:=\s]+([^\s]+))?\s*(.*)$`,
)

// historyFenceOpen is the fenced-block marker this implementation adopts for
// the open question in spec §9: a directive token appearing inside a
// ```history ... ``` fence is part of injected group history, not the
// current turn, and must not be parsed.
const historyFenceOpen = "```history"

// Parse extracts a directive from the start of a normalized message body.
// body must already have timestamp/quote-header prefixes stripped (the
// Envelope.Body normalization spec §3 describes). Returns ok=false if body
// does not start with a recognized directive, or if body is inside a
// batched-history fence.
func Parse(body string) (d Directive, ok bool) {
	trimmed := strings.TrimSpace(body)
	if strings.HasPrefix(trimmed, historyFenceOpen) {
		return Directive{}, false
	}

	m := directivePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return Directive{}, false
	}

	d.Kind = Kind(strings.ToLower(m[1]))
	d.Value = strings.ToLower(m[2])
	d.Rest = strings.TrimSpace(m[3])
	return d, true
}

// ValidThinkingLevels is the allowlist for "/think <level>".
var ValidThinkingLevels = map[string]bool{
	"off": true, "minimal": true, "low": true, "medium": true, "high": true, "max": true,
}

// ValidVerboseModes is the allowlist for "/verbose <mode>".
var ValidVerboseModes = map[string]bool{"on": true, "full": true, "off": true}

// ValidQueueModes is the allowlist for "/queue <mode>". "reset" clears the
// session override back to inherit-from-config.
var ValidQueueModes = map[string]bool{"queue": true, "interrupt": true, "reset": true}
