// Package transport defines the two abstract primitives the node engine
// depends on: a topic-based publish/subscribe broadcast and a
// request/response unicast addressed by opaque peer identifier. The real
// TCP/stream-muxing/Noise/mDNS/gossip transport is out of scope for this
// module; PubSub and Unicast are the seam a production binary implements.
package transport

import "context"

// PeerID is an opaque, transport-assigned identifier for a remote node.
// The core never interprets its contents.
type PeerID string

// Subscription represents an active topic subscription; Cancel stops
// delivery and releases any transport-side resources.
type Subscription interface {
	Cancel() error
}

// PubSub delivers opaque byte payloads to every peer subscribed to a
// topic. Used by ChatProtocol (per-channel topics) and PresenceProtocol
// (the well-known presence topic).
type PubSub interface {
	// Publish broadcasts payload to every current subscriber of topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers handler to be invoked for every payload
	// published to topic, including by this node itself unless the
	// implementation suppresses self-delivery.
	Subscribe(ctx context.Context, topic string, handler func(peer PeerID, payload []byte)) (Subscription, error)
}

// Unicast delivers a single opaque byte payload to one peer over a short
// request/response stream and returns that peer's response. Used by
// VouchProtocol and KeyExchangeProtocol.
type Unicast interface {
	// RegisterHandler installs the handler invoked for every inbound
	// stream opened against protocolID. The handler's returned bytes (or
	// error) become the response written back to the initiator.
	RegisterHandler(protocolID string, handler func(ctx context.Context, peer PeerID, payload []byte) ([]byte, error))

	// Send opens a stream to peer for protocolID, writes payload, closes
	// the write half, and returns the peer's response.
	Send(ctx context.Context, peer PeerID, protocolID string, payload []byte) ([]byte, error)
}
