// Package protocol defines the canonical wire envelopes shared by the
// four peer protocols: deterministic JSON structures with byte fields
// encoded as arrays of integers, matching the node's on-wire and
// invite-code formats exactly.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedEnvelope is returned when a received payload fails to parse
// into its expected envelope shape: bad JSON, missing fields, or a byte
// field of the wrong length. Handlers treat this as a silent local drop.
var ErrMalformedEnvelope = errors.New("protocol: malformed envelope")

// Bytes is a byte slice that marshals to and from JSON as an array of
// integers (e.g. [1,2,3]), rather than the standard library's default
// base64 string encoding, matching the wire format every envelope in this
// system uses for nonces, keys, and signatures.
type Bytes []byte

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("%w: byte array: %v", ErrMalformedEnvelope, err)
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("%w: byte value out of range", ErrMalformedEnvelope)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// FixedBytes converts a fixed-size byte array to Bytes for embedding in
// an envelope.
func FixedBytes[N int](arr []byte) Bytes {
	return Bytes(append([]byte(nil), arr...))
}

// Expect validates that b is exactly n bytes long, returning
// ErrMalformedEnvelope otherwise.
func (b Bytes) Expect(n int) error {
	if len(b) != n {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedEnvelope, n, len(b))
	}
	return nil
}
