package channels

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
)

func TestHandleMessage_PublishesAllowedSender(t *testing.T) {
	b := bus.NewMessageBus(4, 0)
	defer b.Close()
	c := NewBaseChannel("telegram", b, nil)

	c.HandleMessage("user1", "chat1", "hello", nil, nil, "direct")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected the message to be published")
	}
	if msg.Envelope.Body != "hello" {
		t.Errorf("expected body %q, got %q", "hello", msg.Envelope.Body)
	}
}

func TestHandleMessage_DropsDisallowedSender(t *testing.T) {
	b := bus.NewMessageBus(4, 0)
	defer b.Close()
	c := NewBaseChannel("telegram", b, []string{"999"})

	c.HandleMessage("user1", "chat1", "hello", nil, nil, "direct")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("expected the disallowed sender's message to be dropped")
	}
}

// TestHandleMessage_DropsOverRateLimit verifies that once a sender's inbound
// rate limit is exhausted, further HandleMessage calls are dropped before
// reaching the bus rather than queuing up unboundedly.
func TestHandleMessage_DropsOverRateLimit(t *testing.T) {
	b := bus.NewMessageBus(rateLimitMaxHits+5, 0)
	defer b.Close()
	c := NewBaseChannel("telegram", b, nil)

	for i := 0; i < rateLimitMaxHits; i++ {
		c.HandleMessage("user1", "chat1", "hello", nil, nil, "direct")
	}
	c.HandleMessage("user1", "chat1", "one too many", nil, nil, "direct")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	delivered := 0
	for {
		if _, ok := b.ConsumeInbound(ctx); ok {
			delivered++
		} else {
			break
		}
	}
	if delivered != rateLimitMaxHits {
		t.Fatalf("expected exactly %d delivered messages, got %d", rateLimitMaxHits, delivered)
	}
}
