// Package keyex implements the one-shot key-exchange unicast protocol: a
// channel's creator pushes its group key to a newly-vouched member over
// an ephemeral X25519 exchange, and the member installs the channel
// locally on receipt.
package keyex

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Womp-Womp/OrderNet/internal/channel"
	"github.com/Womp-Womp/OrderNet/internal/crypto"
	"github.com/Womp-Womp/OrderNet/internal/events"
	"github.com/Womp-Womp/OrderNet/internal/identity"
	"github.com/Womp-Womp/OrderNet/internal/logging"
	"github.com/Womp-Womp/OrderNet/internal/metrics"
	"github.com/Womp-Womp/OrderNet/internal/protocol"
	"github.com/Womp-Womp/OrderNet/internal/recovery"
	"github.com/Womp-Womp/OrderNet/internal/transport"
)

// PeerResolver maps a node's Ed25519 public key (hex) to its current
// transport address, as learned from presence announcements.
type PeerResolver interface {
	PeerIDFor(pubKeyHex string) (transport.PeerID, bool)
}

// Protocol sends and receives channel group keys.
type Protocol struct {
	id       *identity.Identity
	channels *channel.Manager
	resolver PeerResolver
	unicast  transport.Unicast
	bus      *events.Bus
	logger   *slog.Logger

	now func() int64
}

// New wires a key-exchange protocol instance and registers its unicast
// handler.
func New(id *identity.Identity, channels *channel.Manager, resolver PeerResolver, unicast transport.Unicast, bus *events.Bus, logger *slog.Logger) *Protocol {
	p := &Protocol{
		id:       id,
		channels: channels,
		resolver: resolver,
		unicast:  unicast,
		bus:      bus,
		logger:   logger,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
	unicast.RegisterHandler(protocol.KeyExchangeProtocolID, p.handle)
	return p
}

// Send delivers the group key for channelID to recipientPub, encrypted
// under a key derived from a fresh ephemeral X25519 exchange.
func (p *Protocol) Send(ctx context.Context, recipientPub [32]byte, channelID string) error {
	state, ok := p.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("keyex: unknown channel %q", channelID)
	}

	recipientHex := hex.EncodeToString(recipientPub[:])
	peerID, ok := p.resolver.PeerIDFor(recipientHex)
	if !ok {
		return fmt.Errorf("keyex: no known route to peer %s", recipientHex)
	}

	recipientX25519, err := crypto.Ed25519PublicKeyToX25519(recipientPub)
	if err != nil {
		return fmt.Errorf("convert recipient key: %w", err)
	}

	ephPriv, ephPub, err := crypto.GenerateX25519Keypair()
	if err != nil {
		return fmt.Errorf("generate ephemeral keypair: %w", err)
	}
	defer crypto.ZeroKey(&ephPriv)

	shared, err := crypto.ComputeSharedSecret(ephPriv, recipientX25519)
	if err != nil {
		return fmt.Errorf("compute shared secret: %w", err)
	}
	defer crypto.ZeroKey(&shared)

	symKey, err := crypto.DeriveKey(shared, crypto.KeyExchangeInfo)
	if err != nil {
		return fmt.Errorf("derive symmetric key: %w", err)
	}
	defer crypto.ZeroKey(&symKey)

	nonce, err := crypto.RandomNonce()
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	encryptedGroupKey, err := crypto.SealWithNonce(symKey, nonce, state.GroupKey[:])
	if err != nil {
		return fmt.Errorf("seal group key: %w", err)
	}

	selfPub := p.id.PublicKey()
	env := protocol.KeyExchangeEnvelope{
		SenderPubKey:      protocol.Bytes(selfPub[:]),
		RecipientPubKey:   protocol.Bytes(recipientPub[:]),
		ChannelID:         channelID,
		EncryptedGroupKey: protocol.Bytes(encryptedGroupKey),
		EphemeralPubKey:   protocol.Bytes(ephPub[:]),
		Nonce:             protocol.Bytes(nonce[:]),
		Timestamp:         p.now(),
	}
	payload, err := env.SigningPayload()
	if err != nil {
		return fmt.Errorf("build signing payload: %w", err)
	}
	sig := p.id.Sign(payload)
	env.Signature = protocol.Bytes(sig[:])

	data, err := protocol.MarshalKeyExchange(env)
	if err != nil {
		return fmt.Errorf("marshal key exchange: %w", err)
	}

	if _, err := p.unicast.Send(ctx, peerID, protocol.KeyExchangeProtocolID, data); err != nil {
		return fmt.Errorf("send key exchange: %w", err)
	}
	metrics.Default().RecordKeyExchangeSent()
	return nil
}

func (p *Protocol) handle(ctx context.Context, peer transport.PeerID, payload []byte) (data []byte, err error) {
	defer recovery.RecoverWithCallback(p.logger, "keyex-handle", func(r interface{}) {
		err = fmt.Errorf("keyex: panic handling message from %q: %v", peer, r)
		if p.bus != nil {
			p.bus.EmitError("keyex.handle", err)
		}
	})

	env, err := protocol.UnmarshalKeyExchange(payload)
	if err != nil {
		metrics.Default().RecordKeyExchangeError("malformed")
		if p.logger != nil {
			p.logger.Debug("dropping malformed key exchange", logging.KeyPeer, string(peer), logging.KeyError, err)
		}
		return nil, err
	}

	self := p.id.PublicKey()
	if string(env.RecipientPubKey) != string(self[:]) {
		metrics.Default().RecordKeyExchangeError("wrong-recipient")
		return nil, fmt.Errorf("keyex: not addressed to this node")
	}

	signingPayload, err := env.SigningPayload()
	if err != nil {
		return nil, fmt.Errorf("rebuild signing payload: %w", err)
	}
	var senderPub [32]byte
	copy(senderPub[:], env.SenderPubKey)
	var sig [64]byte
	copy(sig[:], env.Signature)
	if !crypto.Verify(senderPub, signingPayload, sig) {
		metrics.Default().RecordKeyExchangeError("bad-signature")
		return nil, fmt.Errorf("keyex: signature verification failed")
	}

	selfX25519 := crypto.Ed25519PrivateKeyToX25519(p.id.Keypair().Seed)

	var ephPub [32]byte
	copy(ephPub[:], env.EphemeralPubKey)
	shared, err := crypto.ComputeSharedSecret(selfX25519, ephPub)
	if err != nil {
		return nil, fmt.Errorf("compute shared secret: %w", err)
	}
	defer crypto.ZeroKey(&shared)

	symKey, err := crypto.DeriveKey(shared, crypto.KeyExchangeInfo)
	if err != nil {
		return nil, fmt.Errorf("derive symmetric key: %w", err)
	}
	defer crypto.ZeroKey(&symKey)

	var nonce [crypto.NonceSize]byte
	copy(nonce[:], env.Nonce)
	groupKeyBytes, err := crypto.OpenWithNonce(symKey, nonce, env.EncryptedGroupKey)
	if err != nil {
		metrics.Default().RecordKeyExchangeError("aead-failure")
		return nil, fmt.Errorf("decrypt group key: %w", err)
	}
	var groupKey [channel.GroupKeySize]byte
	copy(groupKey[:], groupKeyBytes)

	// The local channel record did not survive the vouch/invite round
	// trip, so it is rebuilt from the key exchange itself: the sender is
	// recorded as the creator and the threshold reset to the package
	// default, which does not necessarily match the channel's real
	// creator or threshold.
	cfg := channel.Config{
		ID:               env.ChannelID,
		Name:             "#" + env.ChannelID,
		CreatorPubKeyHex: strings.ToLower(hex.EncodeToString(env.SenderPubKey)),
		VouchThreshold:   channel.DefaultVouchThreshold,
		CreatedAt:        env.Timestamp,
		AccessMode:       channel.AccessPrivate,
		InviteOnly:       true,
		AllowedMembers:   map[string]struct{}{},
	}

	if _, err := p.channels.JoinChannel(cfg, groupKey); err != nil {
		return nil, fmt.Errorf("join channel: %w", err)
	}
	metrics.Default().RecordKeyExchangeReceived()

	if p.bus != nil {
		p.bus.Emit(events.Event{Kind: events.KindKeyReceived, KeyReceived: events.KeyReceived{ChannelID: env.ChannelID}})
	}
	return nil, nil
}
