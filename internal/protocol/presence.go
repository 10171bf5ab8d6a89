package protocol

import (
	"encoding/json"
	"fmt"
)

// PresenceTopic is the single well-known pub/sub topic all presence
// announcements are published to.
const PresenceTopic = "/ordernet/presence/1.0.0"

// PresenceEnvelope is a signed, periodic announcement of a node's
// liveness, nickname, and channel membership.
type PresenceEnvelope struct {
	PubKey    Bytes    `json:"pubKey"`
	Nickname  string   `json:"nickname"`
	Timestamp int64    `json:"timestamp"`
	Channels  []string `json:"channels"`
	Signature Bytes    `json:"signature"`
}

// PresenceSigningPayload is the canonical JSON signed by a presence
// announcement: every field except the signature itself.
type PresenceSigningPayload struct {
	PubKey    Bytes    `json:"pubKey"`
	Nickname  string   `json:"nickname"`
	Timestamp int64    `json:"timestamp"`
	Channels  []string `json:"channels"`
}

// SigningPayload returns the canonical bytes a presence announcement signs.
func (e PresenceEnvelope) SigningPayload() ([]byte, error) {
	return json.Marshal(PresenceSigningPayload{
		PubKey:    e.PubKey,
		Nickname:  e.Nickname,
		Timestamp: e.Timestamp,
		Channels:  e.Channels,
	})
}

// MarshalPresence serializes a PresenceEnvelope to its canonical wire form.
func MarshalPresence(e PresenceEnvelope) ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalPresence parses a PresenceEnvelope.
func UnmarshalPresence(data []byte) (PresenceEnvelope, error) {
	var e PresenceEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("%w: presence envelope: %v", ErrMalformedEnvelope, err)
	}
	if err := e.PubKey.Expect(32); err != nil {
		return e, err
	}
	if err := e.Signature.Expect(64); err != nil {
		return e, err
	}
	return e, nil
}
