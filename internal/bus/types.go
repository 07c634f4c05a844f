package bus

import (
	"context"

	"github.com/nextlevelbuilder/goclaw/internal/envelope"
)

// InboundMessage carries a normalized Envelope plus the routing metadata the
// scheduler needs (target agent, session scoping inputs). Channels publish
// these; the inbound consumer (internal/dispatch.Consumer) consumes them.
type InboundMessage struct {
	Envelope envelope.Envelope
	AgentID  string // explicit target agent, resolved by binding if empty
}

// OutboundMessage represents a message to be sent to a channel (spec §4.7).
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	Media    []MediaAttachment
	Metadata map[string]string
}

// MediaAttachment is a media file to be sent with a message.
type MediaAttachment struct {
	URL         string
	ContentType string
	Caption     string
}

// Event is a server-side event broadcast to WebSocket control-plane clients
// (spec §4.6 event stream).
type Event struct {
	Name    string
	Payload interface{}
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(InboundMessage) error

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription, decoupling the
// gateway WS server and the agent runtime from the concrete MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// MessageRouter abstracts inbound/outbound routing between channels and the
// scheduler/agent runtime.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
