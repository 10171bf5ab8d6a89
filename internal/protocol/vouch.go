package protocol

import (
	"encoding/json"
	"fmt"
)

// VouchProtocolID is the request/response unicast protocol id for join
// requests and vouches.
const VouchProtocolID = "/ordernet/vouch/1.0.0"

// Vouch message kinds, discriminated by the envelope's "type" field.
const (
	VouchMsgJoinRequest = "join_request"
	VouchMsgVouch       = "vouch"
)

// JoinRequestMessage is sent by a peer requesting to join a channel.
type JoinRequestMessage struct {
	Type            string `json:"type"`
	RequesterPubKey Bytes  `json:"requesterPubKey"`
	Nickname        string `json:"nickname"`
	ChannelID       string `json:"channelId"`
	Timestamp       int64  `json:"timestamp"`
}

// VouchMessage is sent by a voucher attesting to a vouchee's access to a
// channel.
type VouchMessage struct {
	Type          string `json:"type"`
	VoucherPubKey Bytes  `json:"voucherPubKey"`
	VoucheePubKey Bytes  `json:"voucheePubKey"`
	ChannelID     string `json:"channelId"`
	Timestamp     int64  `json:"timestamp"`
	Signature     Bytes  `json:"signature"`
}

// VouchSigningPayload is the canonical JSON a vouch's signature covers:
// voucher, vouchee, channel and timestamp, in that order.
type VouchSigningPayload struct {
	VoucherPubKey Bytes  `json:"voucherPubKey"`
	VoucheePubKey Bytes  `json:"voucheePubKey"`
	ChannelID     string `json:"channelId"`
	Timestamp     int64  `json:"timestamp"`
}

// SigningPayload returns the canonical bytes a vouch's signature covers.
func (v VouchMessage) SigningPayload() ([]byte, error) {
	return json.Marshal(VouchSigningPayload{
		VoucherPubKey: v.VoucherPubKey,
		VoucheePubKey: v.VoucheePubKey,
		ChannelID:     v.ChannelID,
		Timestamp:     v.Timestamp,
	})
}

// vouchTypeEnvelope is used only to sniff the "type" discriminator before
// parsing into the concrete message shape.
type vouchTypeEnvelope struct {
	Type string `json:"type"`
}

// MarshalJoinRequest serializes a JoinRequestMessage, stamping its type.
func MarshalJoinRequest(m JoinRequestMessage) ([]byte, error) {
	m.Type = VouchMsgJoinRequest
	return json.Marshal(m)
}

// MarshalVouch serializes a VouchMessage, stamping its type.
func MarshalVouch(m VouchMessage) ([]byte, error) {
	m.Type = VouchMsgVouch
	return json.Marshal(m)
}

// ParseVouchEnvelope inspects the "type" discriminator of a unicast vouch
// payload and parses it into exactly one of *JoinRequestMessage or
// *VouchMessage (the other is nil). Returns ErrMalformedEnvelope on bad
// JSON, an unknown type, or missing/ill-sized fields.
func ParseVouchEnvelope(data []byte) (*JoinRequestMessage, *VouchMessage, error) {
	var kind vouchTypeEnvelope
	if err := json.Unmarshal(data, &kind); err != nil {
		return nil, nil, fmt.Errorf("%w: vouch envelope: %v", ErrMalformedEnvelope, err)
	}

	switch kind.Type {
	case VouchMsgJoinRequest:
		var m JoinRequestMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, nil, fmt.Errorf("%w: join_request: %v", ErrMalformedEnvelope, err)
		}
		if err := m.RequesterPubKey.Expect(32); err != nil {
			return nil, nil, err
		}
		if m.ChannelID == "" {
			return nil, nil, fmt.Errorf("%w: join_request missing channelId", ErrMalformedEnvelope)
		}
		return &m, nil, nil

	case VouchMsgVouch:
		var m VouchMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, nil, fmt.Errorf("%w: vouch: %v", ErrMalformedEnvelope, err)
		}
		if err := m.VoucherPubKey.Expect(32); err != nil {
			return nil, nil, err
		}
		if err := m.VoucheePubKey.Expect(32); err != nil {
			return nil, nil, err
		}
		if err := m.Signature.Expect(64); err != nil {
			return nil, nil, err
		}
		if m.ChannelID == "" {
			return nil, nil, fmt.Errorf("%w: vouch missing channelId", ErrMalformedEnvelope)
		}
		return nil, &m, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown vouch message type %q", ErrMalformedEnvelope, kind.Type)
	}
}
