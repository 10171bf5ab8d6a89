// Package events implements the node's single event sink as an explicit
// tagged sum type fanned out to subscribers, rather than an
// emitter-with-dynamic-dispatch base class: there is exactly one Kind tag
// per Event and no runtime type assertion beyond that tag switch.
package events

import (
	"log/slog"
	"sync"
)

// Kind discriminates the payload carried by an Event.
type Kind string

const (
	KindMessage     Kind = "message"
	KindPeerJoined  Kind = "peer-joined"
	KindPeerLeft    Kind = "peer-left"
	KindJoinRequest Kind = "join-request"
	KindVouch       Kind = "vouch-received"
	KindChannelJoin Kind = "channel-joined"
	KindKeyReceived Kind = "key-received"
	KindPresence    Kind = "presence"
	KindDM          Kind = "dm"
	KindError       Kind = "error"
)

// Message is the payload for KindMessage: a decrypted, verified chat
// message delivered to the UI.
type Message struct {
	ChannelID  string
	MessageID  string
	Content    string
	SenderHex  string
	SenderNick string
	Timestamp  int64
}

// Peer is the payload for KindPeerJoined and KindPeerLeft.
type Peer struct {
	PubKeyHex string
	Nickname  string
}

// JoinRequest is the payload for KindJoinRequest.
type JoinRequest struct {
	RequesterHex string
	ChannelID    string
}

// Vouch is the payload for KindVouch.
type Vouch struct {
	VoucherHex string
	VoucheeHex string
	ChannelID  string
}

// ChannelJoined is the payload for KindChannelJoin: the trust threshold
// for vouchee was reached on channelID, and the orchestrator should send
// a key exchange.
type ChannelJoined struct {
	ChannelID  string
	VoucheeHex string
}

// KeyReceived is the payload for KindKeyReceived.
type KeyReceived struct {
	ChannelID string
}

// Presence is the payload for KindPresence: one received announcement.
type Presence struct {
	PubKeyHex string
	Nickname  string
	Channels  []string
}

// Error is the payload for KindError.
type Error struct {
	Context string
	Err     error
}

// Event is the single sum type carried over the bus; exactly the field
// matching Kind is meaningful.
type Event struct {
	Kind Kind

	Message       Message
	Peer          Peer
	JoinRequest   JoinRequest
	Vouch         Vouch
	ChannelJoined ChannelJoined
	KeyReceived   KeyReceived
	Presence      Presence
	Error         Error
}

// subscriberBufferSize bounds the per-subscriber backlog; delivery is
// best-effort, so a slow subscriber drops events rather than blocking the
// executor.
const subscriberBufferSize = 64

// Bus fans out Events to any number of subscribers, in arrival order per
// subscriber.
type Bus struct {
	logger *slog.Logger

	mu   sync.Mutex
	subs []chan Event
}

// NewBus creates an empty event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe returns a receive-only channel that will carry every
// subsequently emitted Event, in arrival order. The channel is buffered;
// if a subscriber falls behind, newer events are dropped for it rather
// than stalling the publisher.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	return ch
}

// Emit delivers an Event to every subscriber, best-effort: a full
// subscriber buffer causes that event to be dropped for that subscriber
// only, logged at debug level.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	subs := append([]chan Event(nil), b.subs...)
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			if b.logger != nil {
				b.logger.Debug("event dropped: subscriber buffer full", "kind", string(e.Kind))
			}
		}
	}
}

// EmitError is a convenience wrapper for the common KindError case.
func (b *Bus) EmitError(context string, err error) {
	b.Emit(Event{Kind: KindError, Error: Error{Context: context, Err: err}})
}
