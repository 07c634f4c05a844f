package dispatch

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/agentrt"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/envelope"
	"github.com/nextlevelbuilder/goclaw/internal/scheduler"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
)

// newTestConsumer wires a Consumer over a real Dispatcher whose scheduler
// runs recordFn directly (bypassing agentrt.Runtime's worker subprocess),
// a real sessions.Manager rooted at a temp dir, and a fresh MessageBus.
func newTestConsumer(t *testing.T, recordFn func(ctx context.Context, req agentrt.RunRequest) (agentrt.RunResult, error)) (*Consumer, *bus.MessageBus, *sessions.Manager) {
	t.Helper()

	dir, err := os.MkdirTemp("", "dispatch-consumer-test")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	sessionsMgr, err := sessions.NewManager(dir, clock.Real())
	if err != nil {
		t.Fatalf("sessions.NewManager: %v", err)
	}

	cfg := config.Default()

	d := &Dispatcher{
		sched:    scheduler.New(recordFn, agentrt.MergeRequests, 4),
		sessions: sessionsMgr,
		cfg:      cfg,
	}

	msgBus := bus.NewMessageBus(8, 0)
	t.Cleanup(msgBus.Close)

	c := NewConsumer(msgBus, d, sessionsMgr, nil, cfg)
	return c, msgBus, sessionsMgr
}

func recvOutbound(t *testing.T, b *bus.MessageBus) bus.OutboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := b.SubscribeOutbound(ctx)
	if !ok {
		t.Fatal("expected an outbound reply, got none")
	}
	return msg
}

// TestHandle_StopWordRepliesWithExactAbortText verifies the stop-word path
// replies with the literal text required, not a paraphrase.
func TestHandle_StopWordRepliesWithExactAbortText(t *testing.T) {
	c, b, _ := newTestConsumer(t, func(ctx context.Context, req agentrt.RunRequest) (agentrt.RunResult, error) {
		t.Fatal("stop word must not invoke the agent runtime")
		return agentrt.RunResult{}, nil
	})

	env := envelope.Envelope{Channel: "telegram", From: "u1", ChatType: envelope.ChatDirect, ChatKey: "c1", Body: "stop", RawBody: "stop"}
	c.handle(context.Background(), bus.InboundMessage{Envelope: env})

	out := recvOutbound(t, b)
	if out.Content != "Agent was aborted." {
		t.Fatalf("expected exact abort text, got %q", out.Content)
	}
}

// TestRunTurn_PrefixesAbortReminderThenClears verifies spec scenario 5: once
// a session is marked aborted, the next turn's RunRequest carries the abort
// reminder prefix, and a successful run clears the flag so the turn after
// that carries no prefix.
func TestRunTurn_PrefixesAbortReminderThenClears(t *testing.T) {
	var gotPrefixes []string
	c, b, sessionsMgr := newTestConsumer(t, func(ctx context.Context, req agentrt.RunRequest) (agentrt.RunResult, error) {
		gotPrefixes = append(gotPrefixes, req.BodyPrefix)
		return agentrt.RunResult{SessionID: "sess-1", Content: "ok"}, nil
	})

	env := envelope.Envelope{Channel: "telegram", From: "u1", ChatType: envelope.ChatDirect, ChatKey: "c1", Body: "hello", RawBody: "hello"}
	key := c.sessionKeyFor(defaultAgentID, env)

	if err := sessionsMgr.Mutate(key, func(s *sessions.Session) { s.Aborted = true }); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	c.handle(context.Background(), bus.InboundMessage{Envelope: env})
	recvOutbound(t, b) // drain the reply so the second turn below isn't confused by it

	if len(gotPrefixes) != 1 || gotPrefixes[0] != abortReminder {
		t.Fatalf("expected the first turn to carry the abort reminder prefix, got %v", gotPrefixes)
	}

	s := sessionsMgr.Get(key)
	if s == nil || s.Aborted {
		t.Fatalf("expected Aborted to be cleared after a successful run, got %+v", s)
	}

	c.handle(context.Background(), bus.InboundMessage{Envelope: env})
	recvOutbound(t, b)

	if len(gotPrefixes) != 2 || gotPrefixes[1] != "" {
		t.Fatalf("expected the second turn to carry no prefix, got %v", gotPrefixes)
	}
}
