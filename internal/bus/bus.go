package bus

import (
	"context"
	"sync"
	"time"
)

// MessageBus is the concrete EventPublisher + MessageRouter implementation
// wiring channels, the scheduler, and the control-plane WS server together
// (spec §9 "replaced by an explicit event bus with typed topics"). It was not
// present in the retrieved teacher pack — the shape below is inferred from
// every call site the teacher exercises (PublishInbound/ConsumeInbound,
// PublishOutbound/SubscribeOutbound, Subscribe/Unsubscribe/Broadcast in
// cmd/gateway_consumer.go and internal/gateway/server.go), using channel
// fan-in/fan-out (buffered to the capacity given to NewMessageBus), the idiom used throughout the rest of the teacher
// codebase for producer/consumer decoupling.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string]EventHandler

	// dedupe drops re-delivered inbound messages (transport retries,
	// double-taps) keyed on the envelope's provider messageId (spec §3
	// invariant: a duplicate messageId is not reprocessed).
	dedupe *DedupeCache

	// debounce merges rapid-fire messages from the same chat before they
	// reach the inbound channel (config.GatewayConfig.InboundDebounceMs).
	// Nil when debouncing is disabled (window <= 0).
	debounce *InboundDebouncer
}

// dedupeTTL/dedupeMaxEntries size the inbound dedupe cache; grounded on the
// cmd/gateway_consumer.go call site this package's doc comment describes
// ("bus.NewDedupeCache(20*time.Minute, 5000)").
const (
	dedupeTTL        = 20 * time.Minute
	dedupeMaxEntries = 5000
)

// NewMessageBus creates a bus with the given inbound/outbound channel
// capacity (0 = unbuffered). debounceMs configures the inbound debounce
// window (config.GatewayConfig.InboundDebounceMs); <= 0 disables debouncing
// so every publish reaches the inbound channel immediately.
func NewMessageBus(capacity int, debounceMs int) *MessageBus {
	b := &MessageBus{
		inbound:     make(chan InboundMessage, capacity),
		outbound:    make(chan OutboundMessage, capacity),
		subscribers: make(map[string]EventHandler),
		dedupe:      NewDedupeCache(dedupeTTL, dedupeMaxEntries),
	}
	if debounceMs > 0 {
		b.debounce = NewInboundDebouncer(time.Duration(debounceMs)*time.Millisecond, b.enqueueInbound)
	}
	return b
}

// PublishInbound enqueues a message for the inbound consumer loop, first
// dropping messageId duplicates and folding rapid-fire same-chat messages
// through the debounce window (if enabled). Never blocks indefinitely
// callers that can't keep up — channel adapters run their own goroutine, so
// a full inbound channel applies natural backpressure to that adapter's read
// loop only.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if id := msg.Envelope.MessageID; id != "" {
		if b.dedupe.IsDuplicate(msg.Envelope.Channel + "|" + id) {
			return
		}
	}
	if b.debounce != nil {
		b.debounce.Push(msg)
		return
	}
	b.enqueueInbound(msg)
}

func (b *MessageBus) enqueueInbound(msg InboundMessage) {
	b.inbound <- msg
}

// Close stops the debounce timer goroutines without flushing pending
// entries, for use during gateway shutdown.
func (b *MessageBus) Close() {
	if b.debounce != nil {
		b.debounce.Stop()
	}
}

// ConsumeInbound blocks until a message is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a reply for delivery back to its originating
// transport (channels.Manager's outbound dispatch loop is the consumer).
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until an outbound message is available or ctx is
// cancelled. Only one consumer should call this — outbound dispatch is
// single-writer per spec §5 ("single writer channel").
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Subscribe registers a handler for broadcast events, keyed by a caller-
// chosen id (typically the WS connection id).
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a previously registered handler.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast fans an event out to every subscriber. Handlers are invoked
// synchronously from the caller's goroutine — subscribers that need to avoid
// blocking the publisher (e.g. a slow WS write) must buffer internally.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.subscribers {
		h(event)
	}
}
