// Package presence implements periodic liveness announcements over the
// well-known presence topic, and the online-peer map they populate. A
// peer is considered offline only once its entry is found stale at the
// moment something asks for the online set; there is no background timer
// that autonomously evicts it.
package presence

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Womp-Womp/OrderNet/internal/crypto"
	"github.com/Womp-Womp/OrderNet/internal/events"
	"github.com/Womp-Womp/OrderNet/internal/identity"
	"github.com/Womp-Womp/OrderNet/internal/logging"
	"github.com/Womp-Womp/OrderNet/internal/metrics"
	"github.com/Womp-Womp/OrderNet/internal/protocol"
	"github.com/Womp-Womp/OrderNet/internal/recovery"
	"github.com/Womp-Womp/OrderNet/internal/store"
	"github.com/Womp-Womp/OrderNet/internal/transport"
)

// AnnounceInterval is how often this node publishes its own presence.
const AnnounceInterval = 30 * time.Second

// TTL is how long a peer's last announcement is trusted before
// GetOnlinePeers() treats it as stale.
const TTL = 120 * time.Second

// Entry is one peer's last-known presence.
type Entry struct {
	PubKeyHex string
	PeerID    transport.PeerID
	Nickname  string
	Channels  []string
	LastSeen  time.Time
}

// Protocol announces this node's liveness and tracks peers' announcements.
type Protocol struct {
	id     *identity.Identity
	db     *store.Store
	pubsub transport.PubSub
	bus    *events.Bus
	logger *slog.Logger

	now func() time.Time

	mu    sync.RWMutex
	peers map[string]Entry

	channels func() []string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New wires a presence protocol instance and subscribes it to the
// presence topic. channels is called at announce time to report the
// current channel membership.
func New(id *identity.Identity, db *store.Store, pubsub transport.PubSub, bus *events.Bus, logger *slog.Logger, channels func() []string) (*Protocol, error) {
	p := &Protocol{
		id:       id,
		db:       db,
		pubsub:   pubsub,
		bus:      bus,
		logger:   logger,
		now:      time.Now,
		peers:    make(map[string]Entry),
		channels: channels,
		stopCh:   make(chan struct{}),
	}

	if _, err := pubsub.Subscribe(context.Background(), protocol.PresenceTopic, p.handle); err != nil {
		return nil, err
	}
	return p, nil
}

// Start announces immediately and then on AnnounceInterval, until Stop is
// called.
func (p *Protocol) Start() {
	p.wg.Add(1)
	go p.announceLoop()
}

// Stop halts the announce loop and waits for it to exit. A second call
// is a no-op.
func (p *Protocol) Stop() {
	select {
	case <-p.stopCh:
		return
	default:
	}
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Protocol) announceLoop() {
	defer p.wg.Done()
	defer recovery.RecoverWithLog(p.logger, "presence-announce")

	p.announce()

	ticker := time.NewTicker(AnnounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.announce()
		}
	}
}

func (p *Protocol) announce() {
	pub := p.id.PublicKey()
	env := protocol.PresenceEnvelope{
		PubKey:    protocol.Bytes(pub[:]),
		Nickname:  p.id.Nickname(),
		Timestamp: p.now().UnixMilli(),
		Channels:  p.channels(),
	}
	payload, err := env.SigningPayload()
	if err != nil {
		if p.logger != nil {
			p.logger.Error("build presence signing payload", logging.KeyError, err)
		}
		return
	}
	sig := p.id.Sign(payload)
	env.Signature = protocol.Bytes(sig[:])

	data, err := protocol.MarshalPresence(env)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("marshal presence envelope", logging.KeyError, err)
		}
		return
	}

	if err := p.pubsub.Publish(context.Background(), protocol.PresenceTopic, data); err != nil {
		if p.logger != nil {
			p.logger.Warn("publish presence", logging.KeyError, err)
		}
		return
	}
	metrics.Default().RecordPresenceAnnounce()
}

func (p *Protocol) handle(peerID transport.PeerID, payload []byte) {
	defer recovery.RecoverWithCallback(p.logger, "presence-handle", func(r interface{}) {
		if p.bus != nil {
			p.bus.EmitError("presence.handle", fmt.Errorf("panic handling presence announcement from %q: %v", peerID, r))
		}
	})

	env, err := protocol.UnmarshalPresence(payload)
	if err != nil {
		if p.logger != nil {
			p.logger.Debug("dropping malformed presence announcement", logging.KeyPeer, string(peerID), logging.KeyError, err)
		}
		return
	}

	var pub [32]byte
	copy(pub[:], env.PubKey)
	var sig [64]byte
	copy(sig[:], env.Signature)

	signingPayload, err := env.SigningPayload()
	if err != nil {
		return
	}
	if !crypto.Verify(pub, signingPayload, sig) {
		if p.logger != nil {
			p.logger.Debug("dropping presence with bad signature", logging.KeyPeer, string(peerID))
		}
		return
	}

	pubHex := hex.EncodeToString(pub[:])

	// A node's own announcements may be echoed back by a pub/sub
	// implementation that does not suppress self-delivery; these are
	// never tracked as a remote peer.
	if pubHex == p.id.PublicKeyHex() {
		return
	}

	// lastSeen tracks the announcement's own claimed timestamp, not local
	// receipt time, so that out-of-order delivery never moves it backwards.
	announced := time.UnixMilli(env.Timestamp)

	p.mu.Lock()
	existing, wasOnline := p.peers[pubHex]
	if wasOnline && !announced.After(existing.LastSeen) {
		p.mu.Unlock()
		return
	}
	p.peers[pubHex] = Entry{
		PubKeyHex: pubHex,
		PeerID:    peerID,
		Nickname:  env.Nickname,
		Channels:  env.Channels,
		LastSeen:  announced,
	}
	p.mu.Unlock()

	now := p.now()
	if p.db != nil {
		_ = p.db.UpsertPeer(store.PeerRow{
			PublicKeyHex: pubHex,
			Nickname:     env.Nickname,
			FirstSeen:    now.UnixMilli(),
			LastSeen:     now.UnixMilli(),
			Addresses:    []string{},
		})
	}

	metrics.Default().RecordPresenceReceived()

	if p.bus != nil {
		if !wasOnline {
			p.bus.Emit(events.Event{Kind: events.KindPeerJoined, Peer: events.Peer{
				PubKeyHex: pubHex,
				Nickname:  env.Nickname,
			}})
		}
		p.bus.Emit(events.Event{Kind: events.KindPresence, Presence: events.Presence{
			PubKeyHex: pubHex,
			Nickname:  env.Nickname,
			Channels:  env.Channels,
		}})
	}
}

// PeerIDFor reports the last transport address a peer announced from, if
// its entry has not yet been pruned.
func (p *Protocol) PeerIDFor(pubKeyHex string) (transport.PeerID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.peers[pubKeyHex]
	return e.PeerID, ok
}

// GetOnlinePeers returns every peer whose last announcement is within
// TTL, pruning (only here, not on a background timer) any entry that has
// gone stale and emitting peer-left for each one pruned.
func (p *Protocol) GetOnlinePeers() []Entry {
	p.mu.Lock()
	now := p.now()
	out := make([]Entry, 0, len(p.peers))
	var pruned []Entry
	for k, e := range p.peers {
		if now.Sub(e.LastSeen) > TTL {
			delete(p.peers, k)
			pruned = append(pruned, e)
			continue
		}
		out = append(out, e)
	}
	p.mu.Unlock()

	for _, e := range pruned {
		metrics.Default().RecordPeerPrune()
		if p.bus != nil {
			p.bus.Emit(events.Event{Kind: events.KindPeerLeft, Peer: events.Peer{
				PubKeyHex: e.PubKeyHex,
				Nickname:  e.Nickname,
			}})
		}
	}
	metrics.Default().SetPeersOnline(len(out))
	return out
}
