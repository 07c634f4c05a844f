package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/activation"
	"github.com/nextlevelbuilder/goclaw/internal/agentrt"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/channels"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/envelope"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

const defaultAgentID = "default"

// abortReminder prefixes the next turn after a stop-word abort (spec §3
// "aborted", §8 scenario 5: "Next non-stop message invokes agent with abort
// reminder prefix, then clears the flag").
const abortReminder = "[The previous run was aborted by the user.]"

// Consumer drains the message bus's inbound queue and turns each
// authorized Envelope into a scheduled agent run, applying stop-word
// abort and the slash-directive vocabulary (spec §4.1) before admission.
//
// Channel-level authorization (allowlist/mention/pairing) has already run
// by the time a message reaches the bus (internal/channels.BaseChannel.
// HandleMessage); Consumer only applies the directive/stop-word layer that
// is common across every transport.
type Consumer struct {
	bus        *bus.MessageBus
	dispatcher *Dispatcher
	sessions   *sessions.Manager
	channels   *channels.Manager
	cfg        *config.Config
}

// NewConsumer builds a Consumer. channelsMgr may be nil (e.g. in tests that
// don't need streaming-run registration).
func NewConsumer(msgBus *bus.MessageBus, dispatcher *Dispatcher, sessionsMgr *sessions.Manager, channelsMgr *channels.Manager, cfg *config.Config) *Consumer {
	return &Consumer{
		bus:        msgBus,
		dispatcher: dispatcher,
		sessions:   sessionsMgr,
		channels:   channelsMgr,
		cfg:        cfg,
	}
}

// Run drains the inbound bus until ctx is cancelled, handling each message
// on its own goroutine so one slow/blocked turn never head-of-line-blocks
// the rest (per-session serialization already lives in the scheduler).
func (c *Consumer) Run(ctx context.Context) {
	for {
		msg, ok := c.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		go c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg bus.InboundMessage) {
	env := msg.Envelope

	agentID := msg.AgentID
	if agentID == "" {
		agentID = defaultAgentID
	}
	key := c.sessionKeyFor(agentID, env)

	if activation.IsStopWord(env.Body) {
		c.dispatcher.Abort(key)
		c.reply(env, "Agent was aborted.")
		return
	}

	body := env.Body
	modelRef := ""
	thinkingOverride := ""
	verboseOverride := ""
	queueOverride := sessions.QueueModeInherit

	if d, ok := activation.Parse(body); ok {
		switch d.Kind {
		case activation.KindThink:
			if !activation.ValidThinkingLevels[d.Value] {
				c.reply(env, fmt.Sprintf("Unknown thinking level %q.", d.Value))
				return
			}
			if d.Inline() {
				thinkingOverride = d.Value
				body = d.Rest
			} else {
				_ = c.sessions.Mutate(key, func(s *sessions.Session) {
					s.ThinkingLevel = sessions.ThinkingLevel(d.Value)
				})
				c.reply(env, fmt.Sprintf("Thinking level set to %s.", d.Value))
				return
			}
		case activation.KindVerbose:
			if !activation.ValidVerboseModes[d.Value] {
				c.reply(env, fmt.Sprintf("Unknown verbose mode %q.", d.Value))
				return
			}
			if d.Inline() {
				verboseOverride = d.Value
				body = d.Rest
			} else {
				_ = c.sessions.Mutate(key, func(s *sessions.Session) {
					s.Verbose = sessions.VerboseLevel(d.Value)
				})
				c.reply(env, fmt.Sprintf("Verbose mode set to %s.", d.Value))
				return
			}
		case activation.KindQueue:
			if !activation.ValidQueueModes[d.Value] {
				c.reply(env, fmt.Sprintf("Unknown queue mode %q.", d.Value))
				return
			}
			mode := sessions.QueueMode(d.Value)
			if d.Value == "reset" {
				mode = sessions.QueueModeInherit
			}
			if d.Inline() {
				queueOverride = mode
				body = d.Rest
			} else {
				_ = c.sessions.Mutate(key, func(s *sessions.Session) {
					s.QueueMode = mode
				})
				c.reply(env, fmt.Sprintf("Queue mode set to %s.", d.Value))
				return
			}
		case activation.KindNew:
			_ = c.sessions.New(key)
			c.reply(env, "Started a new session.")
			return
		case activation.KindModel:
			if !d.Inline() {
				c.reply(env, "Use \"/model <ref> <message>\" to pin a model for one turn.")
				return
			}
			modelRef = d.Value
			body = d.Rest
		case activation.KindStatus:
			c.reply(env, c.statusText(key))
			return
		case activation.KindRestart:
			c.dispatcher.Abort(key)
			_ = c.sessions.New(key)
			c.reply(env, "Session restarted.")
			return
		}
	}

	if strings.TrimSpace(body) == "" {
		return
	}

	c.runTurn(ctx, key, env, body, modelRef, thinkingOverride, verboseOverride, queueOverride)
}

func (c *Consumer) runTurn(ctx context.Context, key string, env envelope.Envelope, body, modelRef, thinkingOverride, verboseOverride string, queueOverride sessions.QueueMode) {
	s := c.sessions.GetOrCreate(key)

	thinking := thinkingOverride
	if thinking == "" {
		thinking = string(s.ThinkingLevel)
	}
	verbose := verboseOverride
	if verbose == "" {
		verbose = string(s.Verbose)
	}
	effectiveQueue := queueOverride
	if effectiveQueue == sessions.QueueModeInherit {
		effectiveQueue = s.QueueMode
	}
	mode := scheduler.ModeQueue
	if effectiveQueue == sessions.QueueModeInterrupt {
		mode = scheduler.ModeInterrupt
	}

	runID := uuid.NewString()
	if c.channels != nil {
		c.channels.RegisterRun(runID, env.Channel, env.ChatKey, 0)
		defer c.channels.UnregisterRun(runID)
	}

	bodyPrefix := ""
	if s.Aborted {
		bodyPrefix = abortReminder
	}

	req := agentrt.RunRequest{
		RunID:        runID,
		SessionKey:   key,
		SessionID:    s.SessionID,
		SystemPrompt: c.dispatcher.systemPromptFor(agentIDFromKey(key)),
		BodyPrefix:   bodyPrefix,
		Body:         body,
		Media:        mediaURLs(env),
		Thinking:     thinking,
		ModelRef:     modelRef,
		TimeoutMs:    c.cfg.Worker.TimeoutMs,
		Verbosity:    verbose,
	}

	_ = c.sessions.Mutate(key, func(sess *sessions.Session) {
		sess.LastChannel = env.Channel
		sess.LastTo = env.ChatKey
	})

	res, err := c.dispatcher.Schedule(ctx, key, req, mode)
	if err != nil {
		slog.Warn("dispatch: run failed", "session", key, "error", err)
		c.reply(env, "Sorry, that run failed: "+err.Error())
		return
	}

	content := agentrt.SanitizeAssistantContent(res.Content)
	if agentrt.IsSilentReply(content) {
		return
	}
	c.reply(env, content)
}

func (c *Consumer) reply(env envelope.Envelope, text string) {
	if text == "" {
		return
	}
	c.bus.PublishOutbound(bus.OutboundMessage{
		Channel: env.Channel,
		ChatID:  env.ChatKey,
		Content: text,
	})
}

func (c *Consumer) statusText(key string) string {
	s := c.sessions.Get(key)
	if s == nil {
		return "No session yet."
	}
	thinking := s.ThinkingLevel
	if thinking == "" {
		thinking = sessions.ThinkingOff
	}
	verbose := s.Verbose
	if verbose == "" {
		verbose = sessions.VerboseOff
	}
	queue := s.QueueMode
	if queue == sessions.QueueModeInherit {
		queue = sessions.QueueModeQueue
	}
	return fmt.Sprintf("thinking=%s verbose=%s queue=%s aborted=%t", thinking, verbose, queue, s.Aborted)
}

// sessionKeyFor builds the scoped session key for an inbound envelope,
// honoring forum-topic scoping when the adapter recorded one in Extra
// (spec §3 "Forum topic" session key shape).
func (c *Consumer) sessionKeyFor(agentID string, env envelope.Envelope) string {
	kind := sessions.PeerKindFromGroup(env.ChatType != envelope.ChatDirect)
	if kind == sessions.PeerGroup {
		if raw, ok := env.Extra["topicId"]; ok {
			if topicID, err := strconv.Atoi(raw); err == nil {
				return sessions.BuildGroupTopicSessionKey(agentID, env.Channel, env.ChatKey, topicID)
			}
		}
	}
	return sessions.BuildScopedSessionKey(agentID, env.Channel, kind, env.ChatKey, env.AccountID, c.cfg.Sessions.DmScope, c.cfg.Sessions.MainKey)
}

func mediaURLs(env envelope.Envelope) []string {
	if len(env.Media) == 0 {
		return nil
	}
	urls := make([]string, 0, len(env.Media))
	for _, m := range env.Media {
		if m.URL != "" {
			urls = append(urls, m.URL)
		}
	}
	return urls
}

// agentIDFromKey recovers the agentID segment from a canonical session key.
func agentIDFromKey(key string) string {
	agentID, _ := sessions.ParseSessionKey(key)
	if agentID == "" {
		return defaultAgentID
	}
	return agentID
}
