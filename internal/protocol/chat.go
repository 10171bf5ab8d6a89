package protocol

import (
	"encoding/json"
	"fmt"
)

// ChatTopicPrefix is the pub/sub topic namespace chat messages publish
// under; the full topic is ChatTopicPrefix + channelId.
const ChatTopicPrefix = "/ordernet/chat/1.0.0/"

// ChatEnvelope is the on-wire and at-rest form of an EncryptedMessage. The
// signature covers the ciphertext only, not the surrounding metadata (see
// ChatPlaintext); field order matches the canonical JSON shape exactly.
type ChatEnvelope struct {
	Nonce        Bytes  `json:"nonce"`
	Ciphertext   Bytes  `json:"ciphertext"`
	SenderPubKey Bytes  `json:"senderPubKey"`
	Signature    Bytes  `json:"signature"`
	Timestamp    int64  `json:"timestamp"`
	ChannelID    string `json:"channelId"`
	MessageID    string `json:"messageId"`
}

// ChatPlaintext is the JSON structure encrypted inside a ChatEnvelope's
// ciphertext.
type ChatPlaintext struct {
	Content    string `json:"content"`
	SenderNick string `json:"senderNick"`
}

// MarshalChat serializes a ChatEnvelope to its canonical wire form.
func MarshalChat(e ChatEnvelope) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalChat parses a ChatEnvelope, validating the fixed-size byte
// fields. Returns ErrMalformedEnvelope on any structural problem.
func UnmarshalChat(data []byte) (ChatEnvelope, error) {
	var e ChatEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("%w: chat envelope: %v", ErrMalformedEnvelope, err)
	}
	if err := e.Nonce.Expect(24); err != nil {
		return e, err
	}
	if err := e.SenderPubKey.Expect(32); err != nil {
		return e, err
	}
	if err := e.Signature.Expect(64); err != nil {
		return e, err
	}
	if e.ChannelID == "" || e.MessageID == "" {
		return e, fmt.Errorf("%w: chat envelope missing channelId or messageId", ErrMalformedEnvelope)
	}
	return e, nil
}
