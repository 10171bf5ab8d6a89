// Package crypto: passphrase-based protection of the identity's private
// key at rest, using Argon2id to stretch the passphrase into a symmetric
// key and XChaCha20-Poly1305 to seal the private key under it.
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2SaltSize is the size of the random salt stored alongside an
	// encrypted private key.
	Argon2SaltSize = 16

	// Argon2Time, Argon2Memory and Argon2Threads are the Argon2id cost
	// parameters used to derive a key-encryption key from a passphrase.
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024 // KiB
	Argon2Threads = 1

	// DefaultPassphrase protects a fresh identity when the operator has
	// not configured one of their own.
	DefaultPassphrase = "ordernet-default"
)

// ErrIdentityLocked is returned when a stored private key cannot be
// decrypted with the supplied passphrase.
var ErrIdentityLocked = errors.New("crypto: identity locked (wrong passphrase)")

// DerivePassphraseKey stretches passphrase and salt into a 32-byte
// symmetric key via Argon2id.
func DerivePassphraseKey(passphrase string, salt [Argon2SaltSize]byte) [KeySize]byte {
	derived := argon2.IDKey([]byte(passphrase), salt[:], Argon2Time, Argon2Memory, Argon2Threads, KeySize)
	var key [KeySize]byte
	copy(key[:], derived)
	return key
}

// NewSalt samples a fresh random Argon2 salt.
func NewSalt() ([Argon2SaltSize]byte, error) {
	var salt [Argon2SaltSize]byte
	_, err := io.ReadFull(rand.Reader, salt[:])
	return salt, err
}

// SealPrivateKey encrypts a 32-byte Ed25519 seed under a key derived from
// passphrase and a freshly sampled salt. Returns the salt and the sealed
// blob (nonce||ciphertext||tag), both of which must be persisted.
func SealPrivateKey(passphrase string, seed [32]byte) (salt [Argon2SaltSize]byte, sealed []byte, err error) {
	salt, err = NewSalt()
	if err != nil {
		return salt, nil, fmt.Errorf("generate salt: %w", err)
	}
	key := DerivePassphraseKey(passphrase, salt)
	defer ZeroKey(&key)

	sealed, err = Seal(key, seed[:])
	if err != nil {
		return salt, nil, fmt.Errorf("seal private key: %w", err)
	}
	return salt, sealed, nil
}

// OpenPrivateKey decrypts a private key seed sealed by SealPrivateKey.
// Returns ErrIdentityLocked if the passphrase is wrong (authentication
// failure), distinguishing it from other I/O or corruption errors.
func OpenPrivateKey(passphrase string, salt [Argon2SaltSize]byte, sealed []byte) ([32]byte, error) {
	var seed [32]byte

	key := DerivePassphraseKey(passphrase, salt)
	defer ZeroKey(&key)

	plaintext, err := Open(key, sealed)
	if err != nil {
		return seed, ErrIdentityLocked
	}
	if len(plaintext) != 32 {
		return seed, fmt.Errorf("crypto: unexpected private key length %d", len(plaintext))
	}
	copy(seed[:], plaintext)
	return seed, nil
}
