package protocol

import (
	"encoding/json"
	"fmt"
)

// KeyExchangeProtocolID is the one-shot unicast protocol id for
// delivering a channel's group key to a newly-approved member.
const KeyExchangeProtocolID = "/ordernet/keyex/1.0.0"

// KeyExchangeEnvelope delivers a channel's group key to a single
// recipient, encrypted under a key derived from an ephemeral X25519
// exchange with the recipient's public key.
type KeyExchangeEnvelope struct {
	SenderPubKey      Bytes  `json:"senderPubKey"`
	RecipientPubKey   Bytes  `json:"recipientPubKey"`
	ChannelID         string `json:"channelId"`
	EncryptedGroupKey Bytes  `json:"encryptedGroupKey"`
	EphemeralPubKey   Bytes  `json:"ephemeralPubKey"`
	Nonce             Bytes  `json:"nonce"`
	Timestamp         int64  `json:"timestamp"`
	Signature         Bytes  `json:"signature"`
}

// KeyExchangeSigningPayload is the canonical JSON a key-exchange
// signature covers: sender, recipient, channel and timestamp.
type KeyExchangeSigningPayload struct {
	SenderPubKey    Bytes  `json:"sender"`
	RecipientPubKey Bytes  `json:"recipient"`
	ChannelID       string `json:"channel"`
	Timestamp       int64  `json:"timestamp"`
}

// SigningPayload returns the canonical bytes a key-exchange payload's
// signature covers.
func (e KeyExchangeEnvelope) SigningPayload() ([]byte, error) {
	return json.Marshal(KeyExchangeSigningPayload{
		SenderPubKey:    e.SenderPubKey,
		RecipientPubKey: e.RecipientPubKey,
		ChannelID:       e.ChannelID,
		Timestamp:       e.Timestamp,
	})
}

// MarshalKeyExchange serializes a KeyExchangeEnvelope to its canonical
// wire form.
func MarshalKeyExchange(e KeyExchangeEnvelope) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalKeyExchange parses a KeyExchangeEnvelope.
func UnmarshalKeyExchange(data []byte) (KeyExchangeEnvelope, error) {
	var e KeyExchangeEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("%w: keyex envelope: %v", ErrMalformedEnvelope, err)
	}
	if err := e.SenderPubKey.Expect(32); err != nil {
		return e, err
	}
	if err := e.RecipientPubKey.Expect(32); err != nil {
		return e, err
	}
	if err := e.EphemeralPubKey.Expect(32); err != nil {
		return e, err
	}
	if err := e.Nonce.Expect(24); err != nil {
		return e, err
	}
	if err := e.Signature.Expect(64); err != nil {
		return e, err
	}
	if e.ChannelID == "" {
		return e, fmt.Errorf("%w: keyex envelope missing channelId", ErrMalformedEnvelope)
	}
	return e, nil
}
