package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Network is an in-process stand-in for the real libp2p-style transport:
// every Client attached to the same Network can publish/subscribe and
// unicast to every other Client as if they were peers on a real overlay.
// It exists for tests and single-machine demos; a production binary wires
// internal/node to a real PubSub/Unicast implementation instead.
type Network struct {
	mu sync.RWMutex

	nextSubID int
	topicSubs map[string]map[int]topicSubscriber

	handlers map[PeerID]map[string]func(ctx context.Context, peer PeerID, payload []byte) ([]byte, error)
}

type topicSubscriber struct {
	peer    PeerID
	handler func(peer PeerID, payload []byte)
}

// NewNetwork creates an empty in-process network.
func NewNetwork() *Network {
	return &Network{
		topicSubs: make(map[string]map[int]topicSubscriber),
		handlers:  make(map[PeerID]map[string]func(ctx context.Context, peer PeerID, payload []byte) ([]byte, error)),
	}
}

// Client binds a single PeerID to a shared Network, implementing both
// PubSub and Unicast against it.
type Client struct {
	net  *Network
	self PeerID
}

// NewClient returns a Client for self attached to net.
func (n *Network) NewClient(self PeerID) *Client {
	return &Client{net: n, self: self}
}

type localSubscription struct {
	net   *Network
	topic string
	id    int
}

func (s *localSubscription) Cancel() error {
	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	delete(s.net.topicSubs[s.topic], s.id)
	return nil
}

// Publish delivers payload synchronously to every current subscriber of
// topic, including the publisher itself if it is subscribed; this in-process
// implementation has no network delay, so delivery order matches
// subscription order.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.net.mu.RLock()
	ids := make([]int, 0, len(c.net.topicSubs[topic]))
	for id := range c.net.topicSubs[topic] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]topicSubscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, c.net.topicSubs[topic][id])
	}
	c.net.mu.RUnlock()

	for _, s := range subs {
		s.handler(c.self, payload)
	}
	return nil
}

// Subscribe registers handler for topic, returning a Subscription that
// cancels delivery.
func (c *Client) Subscribe(ctx context.Context, topic string, handler func(peer PeerID, payload []byte)) (Subscription, error) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()

	if c.net.topicSubs[topic] == nil {
		c.net.topicSubs[topic] = make(map[int]topicSubscriber)
	}
	id := c.net.nextSubID
	c.net.nextSubID++
	c.net.topicSubs[topic][id] = topicSubscriber{peer: c.self, handler: handler}

	return &localSubscription{net: c.net, topic: topic, id: id}, nil
}

// RegisterHandler installs the unicast handler this client answers
// protocolID requests with.
func (c *Client) RegisterHandler(protocolID string, handler func(ctx context.Context, peer PeerID, payload []byte) ([]byte, error)) {
	c.net.mu.Lock()
	defer c.net.mu.Unlock()

	if c.net.handlers[c.self] == nil {
		c.net.handlers[c.self] = make(map[string]func(ctx context.Context, peer PeerID, payload []byte) ([]byte, error))
	}
	c.net.handlers[c.self][protocolID] = handler
}

// ErrPeerUnreachable is returned by Send when the destination peer has no
// handler registered for protocolID.
var ErrPeerUnreachable = fmt.Errorf("transport: peer unreachable")

// Send invokes peer's registered protocolID handler directly and returns
// its response.
func (c *Client) Send(ctx context.Context, peer PeerID, protocolID string, payload []byte) ([]byte, error) {
	c.net.mu.RLock()
	handler, ok := c.net.handlers[peer][protocolID]
	c.net.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: peer=%s protocol=%s", ErrPeerUnreachable, peer, protocolID)
	}
	return handler(ctx, c.self, payload)
}
