// Package crypto provides the cryptographic primitives used throughout a
// node: Ed25519 identity signing, X25519 key exchange derived from those
// same Ed25519 keys, XChaCha20-Poly1305 authenticated encryption, HKDF key
// derivation, and Argon2id passphrase-based key derivation for encrypting
// the identity's private key at rest.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of X25519 and symmetric AEAD keys in bytes.
	KeySize = 32

	// NonceSize is the nonce size for XChaCha20-Poly1305, in bytes.
	NonceSize = chacha20poly1305.NonceSizeX

	// TagSize is the size of the Poly1305 authentication tag in bytes.
	TagSize = 16

	// EncryptionOverhead is the total bytes an AEAD seal adds beyond the
	// plaintext when the nonce is prepended to the ciphertext.
	EncryptionOverhead = NonceSize + TagSize

	// KeyExchangeInfo is the HKDF context string used to derive the
	// symmetric key protecting a channel's group key during key exchange.
	KeyExchangeInfo = "ordernet-keyex"
)

var (
	// ErrInvalidPublicKey is returned when an ECDH counterparty public key
	// is the all-zero (invalid/low-order) point.
	ErrInvalidPublicKey = errors.New("crypto: invalid remote public key")

	// ErrCiphertextTooShort is returned when a ciphertext cannot possibly
	// contain a nonce and authentication tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// GenerateX25519Keypair generates a fresh, random X25519 keypair suitable
// for a single key-exchange session. Callers should zero the private key
// once the shared secret has been computed.
func GenerateX25519Keypair() (privateKey, publicKey [KeySize]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, privateKey[:]); err != nil {
		return privateKey, publicKey, fmt.Errorf("generate x25519 private key: %w", err)
	}
	curve25519.ScalarBaseMult(&publicKey, &privateKey)
	return privateKey, publicKey, nil
}

// ComputeSharedSecret performs an X25519 Diffie-Hellman exchange and
// returns the resulting shared secret. Low-order (all-zero) results are
// rejected as invalid.
func ComputeSharedSecret(privateKey, remotePublicKey [KeySize]byte) ([KeySize]byte, error) {
	var sharedSecret [KeySize]byte

	var zero [KeySize]byte
	if remotePublicKey == zero {
		return sharedSecret, ErrInvalidPublicKey
	}

	curve25519.ScalarMult(&sharedSecret, &privateKey, &remotePublicKey)

	if sharedSecret == zero {
		return sharedSecret, fmt.Errorf("crypto: ECDH produced a low-order point")
	}
	return sharedSecret, nil
}

// DeriveKey runs HKDF-SHA256 over the shared secret with the given info
// string and returns a fresh 32-byte symmetric key.
func DeriveKey(sharedSecret [KeySize]byte, info string) ([KeySize]byte, error) {
	var key [KeySize]byte
	reader := hkdf.New(sha256.New, sharedSecret[:], nil, []byte(info))
	if _, err := io.ReadFull(reader, key[:]); err != nil {
		return key, fmt.Errorf("hkdf derive: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 under key, using a
// freshly sampled random 24-byte nonce. The returned slice is
// nonce||ciphertext||tag.
func Seal(key [KeySize]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(out, nonce)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts a ciphertext produced by Seal. The nonce is read from the
// first NonceSize bytes.
func Open(key [KeySize]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < EncryptionOverhead {
		return nil, ErrCiphertextTooShort
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	nonce := sealed[:NonceSize]
	plaintext, err := aead.Open(nil, nonce, sealed[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// SealWithNonce encrypts plaintext under key using an explicit,
// caller-supplied nonce, returning the raw ciphertext||tag without the
// nonce prepended. Used where the nonce is already carried separately in
// an envelope, e.g. EncryptedMessage.
func SealWithNonce(key [KeySize]byte, nonce [NonceSize]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// OpenWithNonce decrypts ciphertext||tag under key using an
// explicit, caller-supplied nonce.
func OpenWithNonce(key [KeySize]byte, nonce [NonceSize]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce[:], ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// RandomNonce samples a fresh random XChaCha20-Poly1305 nonce.
func RandomNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	_, err := io.ReadFull(rand.Reader, nonce[:])
	return nonce, err
}

// ZeroBytes overwrites a byte slice with zeros, for clearing ephemeral key
// material once it is no longer needed.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroKey overwrites a fixed-size key array with zeros.
func ZeroKey(k *[KeySize]byte) {
	for i := range k {
		k[i] = 0
	}
}

// Fingerprint renders a short human-readable fingerprint of a public key:
// the first 8 and last 4 hex characters joined by "..".
func Fingerprint(pub [32]byte) string {
	h := hex.EncodeToString(pub[:])
	if len(h) <= 12 {
		return h
	}
	return h[:8] + ".." + h[len(h)-4:]
}
