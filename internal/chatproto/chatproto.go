// Package chatproto implements the per-channel chat protocol: encrypting
// and signing outgoing messages, publishing and receiving them over a
// channel's pub/sub topic, and applying access control and dedup on
// receipt.
package chatproto

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Womp-Womp/OrderNet/internal/channel"
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

// SendRateLimit and SendBurst bound how often this node may publish chat
// messages, independent of channel: a runaway local client should not be
// able to flood the network any more than a remote one.
const (
	SendRateLimit = 5 // messages per second
	SendBurst     = 10
)

// Protocol sends and receives chat messages.
type Protocol struct {
	id       *identity.Identity
	channels *channel.Manager
	db       *store.Store
	pubsub   transport.PubSub
	bus      *events.Bus
	logger   *slog.Logger

	limiter *rate.Limiter

	mu   sync.Mutex
	subs map[string]transport.Subscription
}

// New creates a chat protocol instance. Subscriptions are added per
// channel via Join.
func New(id *identity.Identity, channels *channel.Manager, db *store.Store, pubsub transport.PubSub, bus *events.Bus, logger *slog.Logger) *Protocol {
	return &Protocol{
		id:       id,
		channels: channels,
		db:       db,
		pubsub:   pubsub,
		bus:      bus,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(SendRateLimit), SendBurst),
		subs:     make(map[string]transport.Subscription),
	}
}

// Join subscribes to channelID's chat topic, delivering any inbound
// message to the event bus. Re-joining an already-subscribed channel is a
// no-op.
func (p *Protocol) Join(ctx context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.subs[channelID]; ok {
		return nil
	}

	sub, err := p.pubsub.Subscribe(ctx, protocol.ChatTopicPrefix+channelID, func(peer transport.PeerID, payload []byte) {
		p.receive(channelID, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribe to channel %q: %w", channelID, err)
	}
	p.subs[channelID] = sub
	return nil
}

// Leave cancels channelID's chat subscription, if any.
func (p *Protocol) Leave(channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sub, ok := p.subs[channelID]
	if !ok {
		return nil
	}
	delete(p.subs, channelID)
	return sub.Cancel()
}

// ErrRateLimited is returned by Send when the local send rate limit is
// exceeded.
var ErrRateLimited = fmt.Errorf("chatproto: send rate limit exceeded")

// Send encrypts content under channelID's group key, signs it, and
// publishes it to the channel's topic.
func (p *Protocol) Send(ctx context.Context, channelID, content string) error {
	sendStart := time.Now()
	if !p.limiter.Allow() {
		return ErrRateLimited
	}

	state, ok := p.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("chatproto: not a member of channel %q", channelID)
	}

	plaintext, err := json.Marshal(protocol.ChatPlaintext{Content: content, SenderNick: p.id.Nickname()})
	if err != nil {
		return fmt.Errorf("marshal plaintext: %w", err)
	}

	nonce, err := crypto.RandomNonce()
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext, err := crypto.SealWithNonce(state.GroupKey, nonce, plaintext)
	if err != nil {
		return fmt.Errorf("encrypt message: %w", err)
	}

	// The signature covers only the ciphertext, not the surrounding
	// envelope metadata (timestamp, channel id, message id).
	sig := p.id.Sign(ciphertext)

	self := p.id.PublicKey()
	messageID, err := newMessageID()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	env := protocol.ChatEnvelope{
		Nonce:        protocol.Bytes(nonce[:]),
		Ciphertext:   protocol.Bytes(ciphertext),
		SenderPubKey: protocol.Bytes(self[:]),
		Signature:    protocol.Bytes(sig[:]),
		Timestamp:    time.Now().UnixMilli(),
		ChannelID:    channelID,
		MessageID:    messageID,
	}

	if err := p.store(channelID, env); err != nil {
		return err
	}

	data, err := protocol.MarshalChat(env)
	if err != nil {
		return fmt.Errorf("marshal chat envelope: %w", err)
	}

	if err := p.pubsub.Publish(ctx, protocol.ChatTopicPrefix+channelID, data); err != nil {
		return fmt.Errorf("publish chat message: %w", err)
	}
	metrics.Default().RecordMessageSent(time.Since(sendStart).Seconds())

	if p.bus != nil {
		p.bus.Emit(events.Event{Kind: events.KindMessage, Message: events.Message{
			ChannelID:  channelID,
			MessageID:  messageID,
			Content:    content,
			SenderHex:  hex.EncodeToString(self[:]),
			SenderNick: p.id.Nickname(),
			Timestamp:  env.Timestamp,
		}})
	}
	return nil
}

// receive is the pub/sub delivery callback. It never panics across the
// topic boundary: a recovered panic becomes an error event instead of
// crashing the subscriber.
func (p *Protocol) receive(channelID string, payload []byte) {
	defer recovery.RecoverWithCallback(p.logger, "chatproto-receive", func(r interface{}) {
		if p.bus != nil {
			p.bus.EmitError("chatproto.receive", fmt.Errorf("panic handling chat message on channel %q: %v", channelID, r))
		}
	})

	env, err := protocol.UnmarshalChat(payload)
	if err != nil {
		metrics.Default().RecordMessageDropped("malformed")
		if p.logger != nil {
			p.logger.Debug("dropping malformed chat message", logging.KeyChannelID, channelID, logging.KeyError, err)
		}
		return
	}

	if env.ChannelID != channelID {
		metrics.Default().RecordMessageDropped("channel-mismatch")
		if p.logger != nil {
			p.logger.Debug("dropping chat message with mismatched channel id", logging.KeyChannelID, channelID, "envelope_channel_id", env.ChannelID)
		}
		return
	}

	senderHex := hex.EncodeToString(env.SenderPubKey)
	if !p.channels.HasAccess(channelID, senderHex) {
		metrics.Default().RecordMessageDropped("access-denied")
		if p.logger != nil {
			p.logger.Debug("dropping chat message from a peer without channel access", logging.KeyChannelID, channelID, logging.KeyPeer, senderHex)
		}
		return
	}

	var sender [32]byte
	copy(sender[:], env.SenderPubKey)
	var sig [64]byte
	copy(sig[:], env.Signature)
	if !crypto.Verify(sender, env.Ciphertext, sig) {
		metrics.Default().RecordMessageDropped("bad-signature")
		if p.logger != nil {
			p.logger.Debug("dropping chat message with bad signature", logging.KeyChannelID, channelID, logging.KeyPeer, senderHex)
		}
		return
	}

	exists, err := p.db.MessageExists(env.MessageID)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("check message exists", logging.KeyMessageID, env.MessageID, logging.KeyError, err)
		}
		return
	}
	if exists {
		metrics.Default().RecordMessageDropped("dedup")
		return
	}

	state, ok := p.channels.Get(channelID)
	if !ok {
		metrics.Default().RecordMessageDropped("unknown-channel")
		return
	}

	var nonce [crypto.NonceSize]byte
	copy(nonce[:], env.Nonce)
	plaintextBytes, err := crypto.OpenWithNonce(state.GroupKey, nonce, env.Ciphertext)
	if err != nil {
		metrics.Default().RecordMessageDropped("aead-failure")
		if p.logger != nil {
			p.logger.Debug("dropping chat message that failed to decrypt", logging.KeyChannelID, channelID, logging.KeyPeer, senderHex)
		}
		return
	}

	var plaintext protocol.ChatPlaintext
	if err := json.Unmarshal(plaintextBytes, &plaintext); err != nil {
		metrics.Default().RecordMessageDropped("malformed")
		if p.logger != nil {
			p.logger.Debug("dropping chat message with malformed plaintext", logging.KeyChannelID, channelID)
		}
		return
	}

	if err := p.store(channelID, env); err != nil {
		if p.logger != nil {
			p.logger.Error("persist received message", logging.KeyChannelID, channelID, logging.KeyError, err)
		}
		return
	}

	metrics.Default().RecordMessageReceived()

	if p.bus != nil {
		p.bus.Emit(events.Event{Kind: events.KindMessage, Message: events.Message{
			ChannelID:  channelID,
			MessageID:  env.MessageID,
			Content:    plaintext.Content,
			SenderHex:  senderHex,
			SenderNick: plaintext.SenderNick,
			Timestamp:  env.Timestamp,
		}})
	}
}

func (p *Protocol) store(channelID string, env protocol.ChatEnvelope) error {
	_, err := p.db.SaveMessage(store.MessageRow{
		MessageID:       env.MessageID,
		ChannelID:       channelID,
		NonceHex:        hex.EncodeToString(env.Nonce),
		CiphertextHex:   hex.EncodeToString(env.Ciphertext),
		SenderPubKeyHex: hex.EncodeToString(env.SenderPubKey),
		SignatureHex:    hex.EncodeToString(env.Signature),
		Timestamp:       env.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func newMessageID() (string, error) {
	var buf [16]byte
	if _, err := io.ReadFull(rand.Reader, buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}
