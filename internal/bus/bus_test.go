package bus

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/envelope"
)

func TestPublishInbound_DedupesByMessageID(t *testing.T) {
	b := NewMessageBus(4, 0) // debounce disabled: assert dedupe in isolation
	defer b.Close()

	msg := InboundMessage{Envelope: envelope.Envelope{Channel: "telegram", MessageID: "123", Body: "first"}}
	b.PublishInbound(msg)

	dup := InboundMessage{Envelope: envelope.Envelope{Channel: "telegram", MessageID: "123", Body: "retry"}}
	b.PublishInbound(dup)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	got, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected the first message to be delivered")
	}
	if got.Envelope.Body != "first" {
		t.Errorf("expected first message body, got %q", got.Envelope.Body)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel2()
	if _, ok := b.ConsumeInbound(ctx2); ok {
		t.Error("expected the duplicate messageId to be dropped, but a second message was delivered")
	}
}

func TestPublishInbound_DifferentChannelsNotDeduped(t *testing.T) {
	b := NewMessageBus(4, 0)
	defer b.Close()

	b.PublishInbound(InboundMessage{Envelope: envelope.Envelope{Channel: "telegram", MessageID: "123"}})
	b.PublishInbound(InboundMessage{Envelope: envelope.Envelope{Channel: "discord", MessageID: "123"}})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 2; i++ {
		if _, ok := b.ConsumeInbound(ctx); !ok {
			t.Fatalf("expected 2 messages across distinct channels, got %d", i)
		}
	}
}

func TestPublishInbound_EmptyMessageIDNeverDeduped(t *testing.T) {
	b := NewMessageBus(4, 0)
	defer b.Close()

	b.PublishInbound(InboundMessage{Envelope: envelope.Envelope{Channel: "telegram", Body: "a"}})
	b.PublishInbound(InboundMessage{Envelope: envelope.Envelope{Channel: "telegram", Body: "b"}})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 2; i++ {
		if _, ok := b.ConsumeInbound(ctx); !ok {
			t.Fatalf("expected 2 messages with no messageId to both be delivered, got %d", i)
		}
	}
}

func TestPublishInbound_DebounceMergesRapidMessages(t *testing.T) {
	b := NewMessageBus(4, 30) // 30ms debounce window
	defer b.Close()

	b.PublishInbound(InboundMessage{Envelope: envelope.Envelope{Channel: "telegram", From: "u1", ChatKey: "c1", Body: "hello"}})
	b.PublishInbound(InboundMessage{Envelope: envelope.Envelope{Channel: "telegram", From: "u1", ChatKey: "c1", Body: "world"}})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	got, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("expected a merged message to be delivered after the debounce window")
	}
	if got.Envelope.Body != "hello\nworld" {
		t.Errorf("expected merged body %q, got %q", "hello\nworld", got.Envelope.Body)
	}
}

func TestPublishInbound_DebounceDisabledWhenZero(t *testing.T) {
	b := NewMessageBus(4, 0)
	defer b.Close()
	if b.debounce != nil {
		t.Error("expected debounce to be disabled when debounceMs <= 0")
	}
}

func TestPublishInbound_DebounceDisabledWhenNegative(t *testing.T) {
	b := NewMessageBus(4, -1)
	defer b.Close()
	if b.debounce != nil {
		t.Error("expected debounce to be disabled when debounceMs is negative")
	}
}
