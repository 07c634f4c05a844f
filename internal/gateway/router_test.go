package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/clock"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

type fakeEventPub struct{}

func (fakeEventPub) Subscribe(string, bus.EventHandler) {}
func (fakeEventPub) Unsubscribe(string)                 {}
func (fakeEventPub) Broadcast(bus.Event)                {}

type fakeDispatcher struct {
	reply      string
	err        error
	aborted    string
	sessionKey string
}

func (f *fakeDispatcher) Send(ctx context.Context, sessionKey, message string, mode sessions.QueueMode) (string, string, error) {
	f.sessionKey = sessionKey
	return "run-1", f.reply, f.err
}

func (f *fakeDispatcher) Abort(sessionKey string) { f.aborted = sessionKey }

func newTestRouter(t *testing.T) (*MethodRouter, *Client) {
	t.Helper()
	cfg := config.Default()
	s := NewServer(cfg, fakeEventPub{})
	c := &Client{id: "test-client", out: make(chan []byte, 64)}
	return s.Router(), c
}

func drainResult(t *testing.T, c *Client) protocol.ResponseFrame {
	t.Helper()
	select {
	case data := <-c.out:
		var resp protocol.ResponseFrame
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		return resp
	default:
		t.Fatal("expected a response frame, got none")
		return protocol.ResponseFrame{}
	}
}

// TestDispatch_UnknownMethod verifies spec §4.6: "unknown methods return
// UNKNOWN_METHOD".
func TestDispatch_UnknownMethod(t *testing.T) {
	r, c := newTestRouter(t)
	r.Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "1", Method: "bogus.method"})

	resp := drainResult(t, c)
	if resp.OK || resp.Error == nil || resp.Error.Code != "UNKNOWN_METHOD" {
		t.Fatalf("expected UNKNOWN_METHOD error, got %+v", resp)
	}
}

// TestDispatch_Health verifies the health method's shape.
func TestDispatch_Health(t *testing.T) {
	r, c := newTestRouter(t)
	r.Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "1", Method: protocol.MethodHealth})

	resp := drainResult(t, c)
	if !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
}

// TestDispatch_AgentWithoutDispatcher verifies the agent method fails
// gracefully with UNAVAILABLE when no Dispatcher has been wired.
func TestDispatch_AgentWithoutDispatcher(t *testing.T) {
	r, c := newTestRouter(t)
	params, _ := json.Marshal(map[string]string{"message": "hello"})
	r.Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "1", Method: protocol.MethodAgent, Params: params})

	resp := drainResult(t, c)
	if resp.OK || resp.Error == nil || resp.Error.Code != "UNAVAILABLE" {
		t.Fatalf("expected UNAVAILABLE error, got %+v", resp)
	}
}

// TestDispatch_AgentRequiresMessage verifies INVALID_REQUEST on a missing
// message field.
func TestDispatch_AgentRequiresMessage(t *testing.T) {
	r, c := newTestRouter(t)
	r.SetDispatcher(&fakeDispatcher{reply: "hi"})
	r.Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "1", Method: protocol.MethodChatSend, Params: json.RawMessage(`{}`)})

	resp := drainResult(t, c)
	if resp.OK || resp.Error == nil || resp.Error.Code != "INVALID_REQUEST" {
		t.Fatalf("expected INVALID_REQUEST error, got %+v", resp)
	}
}

// TestDispatch_AgentRunsAndStreamsChatEvents verifies a chat.send call
// returns a runId synchronously and streams started/final chat events
// (spec §4.6 "agent {...} -> {runId} (and streamed chat events)").
func TestDispatch_AgentRunsAndStreamsChatEvents(t *testing.T) {
	r, c := newTestRouter(t)
	r.SetDispatcher(&fakeDispatcher{reply: "hello there"})
	params, _ := json.Marshal(map[string]string{"sessionKey": "main", "message": "hi"})
	r.Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "1", Method: protocol.MethodChatSend, Params: params})

	// "started" is always enqueued synchronously before the run goroutine
	// is even spawned; the response and the "final" event race each other
	// (the goroutine runs concurrently with the synchronous sendResult),
	// so only their relative order to "started" is guaranteed.
	started := <-c.out
	var startedEvt protocol.EventFrame
	json.Unmarshal(started, &startedEvt)
	if startedEvt.Event != protocol.EventChat {
		t.Fatalf("expected a chat event first, got %+v", startedEvt)
	}

	var gotResponse, gotFinal bool
	for i := 0; i < 2; i++ {
		raw := <-c.out
		var resp protocol.ResponseFrame
		if json.Unmarshal(raw, &resp); resp.ID != "" {
			if !resp.OK {
				t.Fatalf("expected ok response with runId, got %+v", resp)
			}
			gotResponse = true
			continue
		}
		var evt protocol.EventFrame
		json.Unmarshal(raw, &evt)
		if evt.Event == protocol.EventChat {
			gotFinal = true
		}
	}
	if !gotResponse || !gotFinal {
		t.Fatalf("expected both a response and a final chat event, got response=%v final=%v", gotResponse, gotFinal)
	}
}

// TestDispatch_ChatAbort verifies chat.abort reaches the Dispatcher.
func TestDispatch_ChatAbort(t *testing.T) {
	r, c := newTestRouter(t)
	d := &fakeDispatcher{}
	r.SetDispatcher(d)
	params, _ := json.Marshal(map[string]string{"sessionKey": "main"})
	r.Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "1", Method: protocol.MethodChatAbort, Params: params})

	drainResult(t, c)
	if d.aborted != "main" {
		t.Fatalf("expected Abort(main), got %q", d.aborted)
	}
}

// TestDispatch_SessionsReset verifies sessions.reset clears the session's
// sessionId via sessions.Manager.New while keeping its routing metadata.
func TestDispatch_SessionsReset(t *testing.T) {
	r, c := newTestRouter(t)
	mgr, err := sessions.NewManager("", clock.Real())
	if err != nil {
		t.Fatalf("new session manager: %v", err)
	}
	r.SetSessions(mgr)
	mgr.Mutate("main", func(s *sessions.Session) {
		s.SessionID = "old-session"
		s.LastChannel = "whatsapp"
	})

	params, _ := json.Marshal(map[string]string{"sessionKey": "main"})
	r.Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "1", Method: protocol.MethodSessionsReset, Params: params})

	resp := drainResult(t, c)
	if !resp.OK {
		t.Fatalf("expected ok response, got %+v", resp)
	}
	if mgr.Get("main").SessionID != "" {
		t.Fatal("expected reset session to clear sessionId")
	}
	if mgr.Get("main").LastChannel != "whatsapp" {
		t.Fatal("expected reset session to keep lastChannel")
	}
}

// TestDispatch_CronWithoutEngineReturnsNotImplemented verifies cron.* fails
// gracefully rather than panicking when no cron engine is wired.
func TestDispatch_CronWithoutEngineReturnsNotImplemented(t *testing.T) {
	r, c := newTestRouter(t)
	r.Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "1", Method: protocol.MethodCronList})

	resp := drainResult(t, c)
	if resp.OK || resp.Error == nil || resp.Error.Code != "NOT_IMPLEMENTED" {
		t.Fatalf("expected NOT_IMPLEMENTED error, got %+v", resp)
	}
}

// TestDispatch_RateLimiting verifies a rate-limited client is rejected
// before the handler even runs, once its burst allowance (5, matching the
// teacher's NewRateLimiter(rpm, 5) call) is exhausted.
func TestDispatch_RateLimiting(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.RateLimitRPM = 1
	s := NewServer(cfg, fakeEventPub{})
	c := &Client{id: "limited-client", out: make(chan []byte, 64)}

	for i := 0; i < 5; i++ {
		s.Router().Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "burst", Method: protocol.MethodHealth})
		resp := drainResult(t, c)
		if !resp.OK {
			t.Fatalf("expected burst request %d to succeed, got %+v", i, resp)
		}
	}

	s.Router().Dispatch(context.Background(), c, &protocol.RequestFrame{ID: "over-burst", Method: protocol.MethodHealth})
	resp := drainResult(t, c)
	if resp.OK || resp.Error == nil || resp.Error.Code != "RATE_LIMITED" {
		t.Fatalf("expected RATE_LIMITED error once burst is exhausted, got %+v", resp)
	}
}
