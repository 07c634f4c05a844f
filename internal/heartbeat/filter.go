package heartbeat

import (
	"regexp"
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

var markupTagRe = regexp.MustCompile(`<[^>]+>`)

// stripMarkup removes simple HTML-ish markup (e.g. "<b>HEARTBEAT_OK</b>")
// so the HEARTBEAT_OK sentinel can be detected regardless of how the
// worker formatted it (spec §4.4 step 5 "after markup stripping").
func stripMarkup(text string) string {
	return strings.TrimSpace(markupTagRe.ReplaceAllString(text, ""))
}

// repeatedOKRe collapses a run of two or more HEARTBEAT_OK tokens (each
// followed by any whitespace or dots) down to a single occurrence,
// implementing "Repeated HEARTBEAT_OK tails are collapsed."
var repeatedOKRe = regexp.MustCompile(`(?:HEARTBEAT_OK[\s.]*){2,}`)

// filterReply implements spec §4.4 step 5: classify the worker's reply as
// an ack (HEARTBEAT_OK) or an alert, apply visibility gating and the
// ackMaxChars cap, and report whether anything should be delivered.
func filterReply(raw string, vis config.VisibilityConfig, ackMaxChars int) (text string, deliver bool) {
	stripped := stripMarkup(raw)
	collapsed := repeatedOKRe.ReplaceAllString(stripped, "HEARTBEAT_OK")

	if strings.Contains(collapsed, "HEARTBEAT_OK") {
		if !vis.ShowOk {
			return "", false
		}
		remainder := strings.TrimSpace(strings.Replace(collapsed, "HEARTBEAT_OK", "", 1))
		if remainder == "" {
			return "", false
		}
		if ackMaxChars > 0 && len(remainder) > ackMaxChars {
			return "", false
		}
		return remainder, true
	}

	if !vis.ShowAlerts {
		return "", false
	}
	if stripped == "" {
		return "", false
	}
	return stripped, true
}
