// Package vouchproto implements the join-request/vouch unicast protocol:
// a prospective member announces its intent to join a channel, and
// existing members vouch for it to the channel's creator until the
// channel's vouch threshold is met.
package vouchproto

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/Womp-Womp/OrderNet/internal/channel"
	"github.com/Womp-Womp/OrderNet/internal/events"
	"github.com/Womp-Womp/OrderNet/internal/identity"
	"github.com/Womp-Womp/OrderNet/internal/logging"
	"github.com/Womp-Womp/OrderNet/internal/metrics"
	"github.com/Womp-Womp/OrderNet/internal/protocol"
	"github.com/Womp-Womp/OrderNet/internal/recovery"
	"github.com/Womp-Womp/OrderNet/internal/transport"
	"github.com/Womp-Womp/OrderNet/internal/trust"
)

// PeerResolver maps a node's Ed25519 public key (hex) to its current
// transport address.
type PeerResolver interface {
	PeerIDFor(pubKeyHex string) (transport.PeerID, bool)
}

// Protocol sends and receives join requests and vouches.
type Protocol struct {
	id       *identity.Identity
	trust    *trust.Engine
	channels *channel.Manager
	resolver PeerResolver
	unicast  transport.Unicast
	bus      *events.Bus
	logger   *slog.Logger
}

// New wires a vouch protocol instance and registers its unicast handler.
func New(id *identity.Identity, trustEngine *trust.Engine, channels *channel.Manager, resolver PeerResolver, unicast transport.Unicast, bus *events.Bus, logger *slog.Logger) *Protocol {
	p := &Protocol{
		id:       id,
		trust:    trustEngine,
		channels: channels,
		resolver: resolver,
		unicast:  unicast,
		bus:      bus,
		logger:   logger,
	}
	unicast.RegisterHandler(protocol.VouchProtocolID, p.handle)
	return p
}

// SendJoinRequest asks recipientPub (typically the channel's creator) to
// admit this node to channelID.
func (p *Protocol) SendJoinRequest(ctx context.Context, recipientPub [32]byte, channelID string) error {
	peerID, ok := p.resolver.PeerIDFor(hex.EncodeToString(recipientPub[:]))
	if !ok {
		return fmt.Errorf("vouchproto: no known route to %x", recipientPub)
	}

	self := p.id.PublicKey()
	data, err := protocol.MarshalJoinRequest(protocol.JoinRequestMessage{
		RequesterPubKey: protocol.Bytes(self[:]),
		Nickname:        p.id.Nickname(),
		ChannelID:       channelID,
		Timestamp:       time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}

	if _, err := p.unicast.Send(ctx, peerID, protocol.VouchProtocolID, data); err != nil {
		return fmt.Errorf("send join request: %w", err)
	}
	return nil
}

// SendVouch signs and sends a vouch for voucheePub on channelID to the
// channel's creator. The caller must already be a member of channelID.
func (p *Protocol) SendVouch(ctx context.Context, voucheePub [32]byte, channelID string) error {
	state, ok := p.channels.Get(channelID)
	if !ok {
		return fmt.Errorf("vouchproto: not a member of channel %q", channelID)
	}

	peerID, ok := p.resolver.PeerIDFor(state.Config.CreatorPubKeyHex)
	if !ok {
		return fmt.Errorf("vouchproto: no known route to channel creator")
	}

	self := p.id.PublicKey()
	v, err := p.trust.CreateVouch(p.id.Keypair().Seed, self, voucheePub, channelID)
	if err != nil {
		return fmt.Errorf("create vouch: %w", err)
	}

	data, err := protocol.MarshalVouch(protocol.VouchMessage{
		VoucherPubKey: protocol.Bytes(v.VoucherPubKey[:]),
		VoucheePubKey: protocol.Bytes(v.VoucheePubKey[:]),
		ChannelID:     v.ChannelID,
		Timestamp:     v.Timestamp,
		Signature:     protocol.Bytes(v.Signature[:]),
	})
	if err != nil {
		return fmt.Errorf("marshal vouch: %w", err)
	}

	if _, err := p.unicast.Send(ctx, peerID, protocol.VouchProtocolID, data); err != nil {
		return fmt.Errorf("send vouch: %w", err)
	}
	metrics.Default().RecordVouchCreated()
	return nil
}

func (p *Protocol) handle(ctx context.Context, peer transport.PeerID, payload []byte) (data []byte, err error) {
	defer recovery.RecoverWithCallback(p.logger, "vouchproto-handle", func(r interface{}) {
		err = fmt.Errorf("vouchproto: panic handling message from %q: %v", peer, r)
		if p.bus != nil {
			p.bus.EmitError("vouchproto.handle", err)
		}
	})

	joinReq, vouch, parseErr := protocol.ParseVouchEnvelope(payload)
	err = parseErr
	if err != nil {
		if p.logger != nil {
			p.logger.Debug("dropping malformed vouch envelope", logging.KeyPeer, string(peer), logging.KeyError, err)
		}
		return nil, err
	}

	if joinReq != nil {
		return nil, p.handleJoinRequest(*joinReq)
	}
	return nil, p.handleVouch(*vouch)
}

func (p *Protocol) handleJoinRequest(m protocol.JoinRequestMessage) error {
	var requester [32]byte
	copy(requester[:], m.RequesterPubKey)

	if err := p.trust.CreateJoinRequest(requester, m.ChannelID); err != nil {
		return fmt.Errorf("record join request: %w", err)
	}
	metrics.Default().RecordJoinRequestCreated()

	if p.bus != nil {
		p.bus.Emit(events.Event{Kind: events.KindJoinRequest, JoinRequest: events.JoinRequest{
			RequesterHex: hex.EncodeToString(m.RequesterPubKey),
			ChannelID:    m.ChannelID,
		}})
	}
	return nil
}

func (p *Protocol) handleVouch(m protocol.VouchMessage) error {
	var voucher, vouchee [32]byte
	copy(voucher[:], m.VoucherPubKey)
	copy(vouchee[:], m.VoucheePubKey)
	var sig [64]byte
	copy(sig[:], m.Signature)

	v := trust.Vouch{
		VoucherPubKey: voucher,
		VoucheePubKey: vouchee,
		ChannelID:     m.ChannelID,
		Timestamp:     m.Timestamp,
		Signature:     sig,
	}

	saved, err := p.trust.SaveVouch(v)
	if err != nil {
		metrics.Default().RecordStorageError("vouches")
		return fmt.Errorf("save vouch: %w", err)
	}
	if !saved {
		metrics.Default().RecordVouchRejected("bad-signature")
		return nil
	}
	metrics.Default().RecordVouchReceived()

	voucheeHex := hex.EncodeToString(vouchee[:])

	if p.bus != nil {
		p.bus.Emit(events.Event{Kind: events.KindVouch, Vouch: events.Vouch{
			VoucherHex: hex.EncodeToString(voucher[:]),
			VoucheeHex: voucheeHex,
			ChannelID:  m.ChannelID,
		}})
	}

	state, ok := p.channels.Get(m.ChannelID)
	if !ok {
		return nil
	}

	count, err := p.trust.VouchCount(voucheeHex, m.ChannelID)
	if err != nil {
		return fmt.Errorf("count vouches: %w", err)
	}
	if count < state.Config.VouchThreshold {
		return nil
	}
	metrics.Default().RecordThresholdReached()
	if p.logger != nil {
		p.logger.Debug("vouch threshold met, approving join request",
			logging.KeyChannelID, m.ChannelID, logging.KeyVouchee, voucheeHex, logging.KeyVoucher, hex.EncodeToString(voucher[:]))
	}

	if err := p.trust.ApproveRequest(voucheeHex, m.ChannelID); err != nil {
		return fmt.Errorf("approve join request: %w", err)
	}

	// The vouchee only receives this channel's group key over keyex; it
	// also needs a spot on the creator's own allowlist, or an invite-only
	// channel would reject every message the vouchee sends back.
	if err := p.channels.InviteMember(m.ChannelID, voucheeHex); err != nil {
		return fmt.Errorf("invite vouchee: %w", err)
	}

	if p.bus != nil {
		p.bus.Emit(events.Event{Kind: events.KindChannelJoin, ChannelJoined: events.ChannelJoined{
			ChannelID:  m.ChannelID,
			VoucheeHex: voucheeHex,
		}})
	}
	return nil
}
