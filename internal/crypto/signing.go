// Package crypto: Ed25519 identity signing. Every node has exactly one
// long-term Ed25519 keypair, used to sign chat messages, vouches, and
// key-exchange payloads, and to authenticate the node to its peers.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

const (
	// Ed25519PublicKeySize is the size of an Ed25519 public key in bytes.
	Ed25519PublicKeySize = ed25519.PublicKeySize

	// Ed25519SeedSize is the size of the Ed25519 private seed stored at
	// rest; the full 64-byte signing key is derived from it on load.
	Ed25519SeedSize = ed25519.SeedSize

	// Ed25519SignatureSize is the size of an Ed25519 signature in bytes.
	Ed25519SignatureSize = ed25519.SignatureSize
)

// IdentityKeypair holds a node's long-term Ed25519 keypair in fixed-size
// form.
type IdentityKeypair struct {
	PublicKey [Ed25519PublicKeySize]byte
	Seed      [Ed25519SeedSize]byte
}

// GenerateIdentityKeypair creates a fresh Ed25519 keypair for a new
// identity.
func GenerateIdentityKeypair() (IdentityKeypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return IdentityKeypair{}, fmt.Errorf("generate ed25519 keypair: %w", err)
	}

	var kp IdentityKeypair
	copy(kp.PublicKey[:], pub)
	copy(kp.Seed[:], priv.Seed())
	return kp, nil
}

// IdentityKeypairFromSeed reconstructs a keypair from a stored 32-byte
// seed.
func IdentityKeypairFromSeed(seed [Ed25519SeedSize]byte) IdentityKeypair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	pub := priv.Public().(ed25519.PublicKey)

	var kp IdentityKeypair
	copy(kp.PublicKey[:], pub)
	kp.Seed = seed
	return kp
}

// PrivateKey reconstructs the full 64-byte ed25519.PrivateKey (seed||pub)
// from the stored seed.
func (kp IdentityKeypair) PrivateKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(kp.Seed[:])
}

// Sign produces an Ed25519 signature over message using this keypair's
// private key.
func (kp IdentityKeypair) Sign(message []byte) [Ed25519SignatureSize]byte {
	sig := ed25519.Sign(kp.PrivateKey(), message)
	var out [Ed25519SignatureSize]byte
	copy(out[:], sig)
	return out
}

// Sign creates an Ed25519 signature of message under the given seed.
func Sign(seed [Ed25519SeedSize]byte, message []byte) [Ed25519SignatureSize]byte {
	return IdentityKeypairFromSeed(seed).Sign(message)
}

// Verify checks whether signature is a valid Ed25519 signature over
// message under publicKey.
func Verify(publicKey [Ed25519PublicKeySize]byte, message []byte, signature [Ed25519SignatureSize]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(publicKey[:]), message, signature[:])
}

// ZeroSeed overwrites a stored Ed25519 seed with zeros.
func ZeroSeed(seed *[Ed25519SeedSize]byte) {
	for i := range seed {
		seed[i] = 0
	}
}
