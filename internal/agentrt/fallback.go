package agentrt

import "strings"

// fallbackWorthyKinds are error "kind" tags the worker may report on an
// error frame that warrant retrying the next candidate model rather than
// failing the run outright (spec §4.3 model fallback).
var fallbackWorthyKinds = map[string]bool{
	"auth":         true,
	"rate_limit":   true,
	"timeout":      true,
	"unavailable":  true,
	"http_401":     true,
	"http_403":     true,
	"http_429":     true,
	"econnreset":   true,
	"econnaborted": true,
	"etimedout":    true,
}

// fallbackWorthySubstrings is checked against the lowercased error message
// when kind is absent or unrecognized.
var fallbackWorthySubstrings = []string{
	"unauthorized", "forbidden", "rate limit", "rate-limit", "too many requests",
	"timeout", "timed out", "econnreset", "econnaborted", "etimedout", "esockettimedout",
}

// isFallbackWorthy decides whether an error frame should advance to the
// next modelRef candidate instead of failing the run.
func isFallbackWorthy(kind, message string) bool {
	if fallbackWorthyKinds[strings.ToLower(kind)] {
		return true
	}
	lower := strings.ToLower(message)
	for _, sub := range fallbackWorthySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// candidateModels returns the ordered, deduped list of modelRef candidates
// to attempt for a run: an explicit per-request override first (if any),
// then the configured fallback list, deduped while preserving order
// (spec §4.3, generalizing internal/agent/resolver.go's
// candidate-dedup-by-(provider,model) pattern to worker invocation args).
func candidateModels(override string, configured []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(ref string) {
		if ref == "" || seen[ref] {
			return
		}
		seen[ref] = true
		out = append(out, ref)
	}
	add(override)
	for _, ref := range configured {
		add(ref)
	}
	return out
}
