// Package dispatch wires the scheduler, agent runtime, and session store
// into the gateway.Dispatcher seam (spec §4.2/§4.3) and runs the inbound
// message pipeline that turns a bus.InboundMessage into a scheduled run.
//
// No concrete teacher source models this orchestration layer directly — it
// is authored against the call-site contracts already established by
// internal/scheduler, internal/agentrt, internal/sessions, and
// internal/activation, following the same "small coordinating type built on
// narrow collaborator interfaces" shape the rest of this codebase uses
// (e.g. internal/heartbeat.Scheduler, internal/gateway.MethodRouter).
package dispatch

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goclaw/internal/agentrt"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/telemetry"
)

// Dispatcher implements gateway.Dispatcher by wrapping a generic
// scheduler.Scheduler instantiated over agentrt's wire types, and is also
// the shared admission point the inbound consumer loop (consumer.go)
// schedules channel-originated turns through.
type Dispatcher struct {
	sched    *scheduler.Scheduler[agentrt.RunRequest, agentrt.RunResult]
	sessions *sessions.Manager
	cfg      *config.Config
}

// New builds a Dispatcher over runtime, using cfg.Agents.Defaults.MaxConcurrent
// as the scheduler's cross-session concurrency cap (spec §4.2 "agent.maxConcurrent").
func New(runtime *agentrt.Runtime, sessionsMgr *sessions.Manager, cfg *config.Config) *Dispatcher {
	maxConcurrent := cfg.Agents.Defaults.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Dispatcher{
		sched:    scheduler.New(runtime.Run, agentrt.MergeRequests, maxConcurrent),
		sessions: sessionsMgr,
		cfg:      cfg,
	}
}

// Schedule admits req for key under mode and blocks until the run it is
// folded into completes, persisting the resulting sessionId and clearing
// aborted on success. Both Send and the inbound consumer loop go through
// this single admission point so every turn — control-plane or
// channel-originated — observes the same per-session serialization.
func (d *Dispatcher) Schedule(ctx context.Context, key string, req agentrt.RunRequest, mode scheduler.Mode) (agentrt.RunResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "dispatch.schedule",
		trace.WithAttributes(
			attribute.String("session.key", key),
			attribute.String("run.mode", string(mode)),
		),
	)
	defer span.End()

	outc := d.sched.Schedule(ctx, key, req, mode)
	outcome := <-outc
	if outcome.Err == nil {
		_ = d.sessions.Mutate(key, func(s *sessions.Session) {
			s.SessionID = outcome.Result.SessionID
			s.Aborted = false
		})
	} else {
		span.RecordError(outcome.Err)
		span.SetStatus(codes.Error, outcome.Err.Error())
	}
	return outcome.Result, outcome.Err
}

// Send implements gateway.Dispatcher for control-plane-originated turns
// (chat.send / agent / send methods), resolving session state itself since
// these calls carry no channel/envelope context.
func (d *Dispatcher) Send(ctx context.Context, sessionKey, message string, queueMode sessions.QueueMode) (string, string, error) {
	s := d.sessions.GetOrCreate(sessionKey)
	agentID, _ := sessions.ParseSessionKey(sessionKey)

	effective := queueMode
	if effective == sessions.QueueModeInherit {
		effective = s.QueueMode
	}
	mode := scheduler.ModeQueue
	if effective == sessions.QueueModeInterrupt {
		mode = scheduler.ModeInterrupt
	}

	runID := uuid.NewString()
	req := agentrt.RunRequest{
		RunID:        runID,
		SessionKey:   sessionKey,
		SessionID:    s.SessionID,
		SystemPrompt: d.systemPromptFor(agentID),
		Body:         message,
		Thinking:     string(s.ThinkingLevel),
		Verbosity:    string(s.Verbose),
		TimeoutMs:    d.cfg.Worker.TimeoutMs,
	}

	res, err := d.Schedule(ctx, sessionKey, req, mode)
	return runID, res.Content, err
}

// Abort implements gateway.Dispatcher, cancelling any in-flight or queued
// run for sessionKey and recording the abort on the session (spec §4.1
// stop-word path, §4.2 cancellation).
func (d *Dispatcher) Abort(sessionKey string) {
	d.sched.CancelSession(sessionKey)
	_ = d.sessions.Mutate(sessionKey, func(s *sessions.Session) {
		s.Aborted = true
	})
}

// RunForced executes prompt against sessionKey as a forced-sync admission
// (spec §4.2 "Forced sync", §4.4/§4.6 heartbeat and cron), matching
// heartbeat.RunFunc and cron.RunFunc's shared signature so cmd/ wiring can
// pass this method directly to either scheduler. Unlike the consumer's runTurn it
// never touches lastChannel/lastProvider/lastTo (spec §4.4 point 5).
func (d *Dispatcher) RunForced(ctx context.Context, sessionKey, prompt string) (string, error) {
	s := d.sessions.GetOrCreate(sessionKey)
	agentID, _ := sessions.ParseSessionKey(sessionKey)
	req := agentrt.RunRequest{
		RunID:        uuid.NewString(),
		SessionKey:   sessionKey,
		SessionID:    s.SessionID,
		SystemPrompt: d.systemPromptFor(agentID),
		Body:         prompt,
		Thinking:     string(s.ThinkingLevel),
		Verbosity:    string(s.Verbose),
		TimeoutMs:    d.cfg.Worker.TimeoutMs,
	}

	outc := d.sched.ScheduleWithOpts(ctx, sessionKey, req, scheduler.ScheduleOpts{Forced: true, Force: true})
	outcome := <-outc
	if outcome.Err == nil {
		_ = d.sessions.Mutate(sessionKey, func(sess *sessions.Session) {
			sess.SessionID = outcome.Result.SessionID
		})
	}
	return outcome.Result.Content, outcome.Err
}

// systemPromptFor resolves the configured agent's persona into a system
// prompt prefix. An empty result leaves the worker process's own default
// system prompt untouched — agent resolution beyond identity naming
// (skills, per-agent tool policy, subagents) is out of scope here, see
// DESIGN.md.
func (d *Dispatcher) systemPromptFor(agentID string) string {
	spec, ok := d.cfg.Agents.List[agentID]
	if !ok || spec.Identity == nil || spec.Identity.Name == "" {
		return ""
	}
	return "You are " + spec.Identity.Name + "."
}
