package crypto

import (
	"crypto/sha512"
	"math/big"
)

// curve25519Prime is 2^255 - 19, the field modulus shared by Ed25519 and
// X25519.
var curve25519Prime = new(big.Int).Sub(
	new(big.Int).Lsh(big.NewInt(1), 255),
	big.NewInt(19),
)

// Ed25519PrivateKeyToX25519 converts an Ed25519 private key seed into its
// Montgomery-form X25519 private scalar: the first 32 bytes of
// SHA-512(seed), clamped per the X25519 specification. This is the same
// derivation used to convert an Ed25519 signing key into a Curve25519 key
// exchange key.
func Ed25519PrivateKeyToX25519(seed [32]byte) [KeySize]byte {
	h := sha512.Sum512(seed[:])

	var out [KeySize]byte
	copy(out[:], h[:32])
	out[0] &= 248
	out[31] &= 127
	out[31] |= 64
	return out
}

// Ed25519PublicKeyToX25519 converts an Ed25519 public key (a point on the
// twisted Edwards curve, encoded as y with a sign bit) to its
// Montgomery-form X25519 public key via the standard birational map
// u = (1+y) / (1-y) mod p. The sign bit carried in the top bit of the
// encoding is irrelevant to u and is discarded.
func Ed25519PublicKeyToX25519(edPub [32]byte) ([KeySize]byte, error) {
	var montgomery [KeySize]byte

	yBytes := make([]byte, 32)
	copy(yBytes, edPub[:])
	yBytes[31] &= 0x7f // clear sign bit

	y := new(big.Int).SetBytes(reverseBytes(yBytes))
	if y.Cmp(curve25519Prime) >= 0 {
		return montgomery, ErrInvalidPublicKey
	}

	one := big.NewInt(1)
	numerator := new(big.Int).Add(one, y)
	numerator.Mod(numerator, curve25519Prime)

	denominator := new(big.Int).Sub(one, y)
	denominator.Mod(denominator, curve25519Prime)
	if denominator.Sign() == 0 {
		return montgomery, ErrInvalidPublicKey
	}

	denomInv := new(big.Int).ModInverse(denominator, curve25519Prime)
	if denomInv == nil {
		return montgomery, ErrInvalidPublicKey
	}

	u := new(big.Int).Mul(numerator, denomInv)
	u.Mod(u, curve25519Prime)

	uBytes := u.Bytes()
	le := reverseBytes(uBytes)
	copy(montgomery[:], le)
	return montgomery, nil
}

// reverseBytes returns a little-endian copy of a big-endian byte slice (or
// vice versa), padded/truncated to no more than 32 bytes of output.
func reverseBytes(b []byte) []byte {
	out := make([]byte, 32)
	n := len(b)
	for i := 0; i < n && i < 32; i++ {
		out[i] = b[n-1-i]
	}
	return out
}
