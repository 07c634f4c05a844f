// Package heartbeat implements spec §4.4: a per-channel periodic probe that
// issues a forced-sync "HEARTBEAT" prompt through the agent runtime and
// conditionally delivers its (often suppressed) reply.
//
// No concrete teacher source models this directly — it is authored from
// scratch against config.HeartbeatConfig's field set
// (internal/config/config.go) and the scheduler's forced-sync admission
// path (internal/scheduler), matching the teacher's established idiom of a
// small per-concern scheduler type driven by a ticker per configured unit
// (see internal/bootstrap and the cron job handlers in cmd/gateway_cron.go
// for the equivalent per-job-ticker shape).
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

const defaultPrompt = "HEARTBEAT"

// RunFunc invokes one forced-sync run for sessionKey and returns the
// agent's raw reply text. The caller (gateway wiring) is responsible for
// routing this through scheduler.ScheduleWithOpts with ScheduleOpts{Forced:
// true} and for ensuring the underlying run does NOT mutate
// lastChannel/lastProvider/lastTo (spec §4.4 point 5) — heartbeat.Scheduler
// itself never calls sessions.Manager.Mutate, only Get, so it cannot
// violate that invariant regardless of how RunFunc is wired.
type RunFunc func(ctx context.Context, sessionKey, prompt string) (string, error)

// LinkedFunc reports whether channel's provider is currently linked/running
// (spec §4.4 step 2, e.g. "webAuthExists && hasActiveWebListener" for
// WhatsApp).
type LinkedFunc func(channel string) bool

// DeliverFunc sends text to a resolved channel/recipient (spec §4.4 step 6).
type DeliverFunc func(ctx context.Context, channel, to, accountID, text string) error

// Channel is one configured heartbeat unit (spec: "For each configured
// channel with heartbeat.every set").
type Channel struct {
	Name   string
	Config config.HeartbeatConfig
}

// Deps are the externally-owned collaborators a Scheduler probes through.
type Deps struct {
	Sessions *sessions.Manager
	Run      RunFunc
	Linked   LinkedFunc
	Deliver  DeliverFunc
	Clock    clock.Clock
}

// Scheduler runs one ticker per configured channel.
type Scheduler struct {
	deps     Deps
	channels []Channel
}

// New creates a Scheduler over the given channels. Channels whose Every is
// empty or "0m" are disabled and never ticked.
func New(deps Deps, channels []Channel) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &Scheduler{deps: deps, channels: channels}
}

// Start launches one probe loop per enabled channel; it returns immediately,
// the loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, ch := range s.channels {
		every, ok := parseEvery(ch.Config.Every)
		if !ok {
			continue
		}
		go s.loop(ctx, ch, every)
	}
}

func (s *Scheduler) loop(ctx context.Context, ch Channel, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.probe(ctx, ch); err != nil {
				slog.Warn("heartbeat probe failed", "channel", ch.Name, "error", err)
			}
		}
	}
}

// parseEvery parses the "30m"/"1h"/"0m" duration config field; "0m", "",
// or "off" disable the channel.
func parseEvery(every string) (time.Duration, bool) {
	if every == "" || every == "0m" || every == "off" {
		return 0, false
	}
	d, err := time.ParseDuration(every)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// probe runs the seven-step algorithm in spec §4.4 once for ch.
func (s *Scheduler) probe(ctx context.Context, ch Channel) error {
	sessionKey := ch.Config.Session
	if sessionKey == "" {
		sessionKey = "main"
	}

	sess := s.deps.Sessions.Get(sessionKey)
	// Step 1: skip if nothing to reply to.
	if sess == nil || sess.LastChannel == "" || sess.LastTo == "" {
		return nil
	}

	// Step 2: skip if the provider for lastChannel isn't linked/running.
	if s.deps.Linked != nil && !s.deps.Linked(sess.LastChannel) {
		return nil
	}

	// ActiveHours restriction.
	if ch.Config.ActiveHours != nil && !withinActiveHours(*ch.Config.ActiveHours, s.deps.Clock.Now()) {
		return nil
	}

	// Step 3: skip if every visibility output is disabled.
	vis := ch.Config.Visibility
	if !vis.ShowAlerts && !vis.ShowOk && !vis.UseIndicator {
		return nil
	}

	// Step 4: issue the forced-sync probe.
	prompt := ch.Config.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}
	if ch.Config.Think != "" {
		prompt = "/think:" + ch.Config.Think + " " + prompt
	}

	reply, err := s.deps.Run(ctx, sessionKey, prompt)
	if err != nil {
		// TransportError-style failure: heartbeat treats it purely as a
		// skip signal (spec: "heartbeat uses it as a skip signal").
		return nil
	}

	// Step 5: filter the response.
	text, deliverable := filterReply(reply, vis, ch.Config.AckMaxChars)
	if !deliverable {
		return nil
	}

	// Step 6: resolve delivery target.
	target, to := sess.LastChannel, sess.LastTo
	if ch.Config.Target != "" && ch.Config.Target != "last" {
		if ch.Config.Target == "none" {
			return nil
		}
		target = ch.Config.Target
	}
	if ch.Config.To != "" {
		to = ch.Config.To
	}

	if s.deps.Deliver == nil {
		return nil
	}
	return s.deps.Deliver(ctx, target, to, ch.Config.AccountID, text)
}
