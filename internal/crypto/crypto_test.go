package crypto

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func generateEd25519(t *testing.T) (pub [32]byte, seed [32]byte, err error) {
	t.Helper()
	p, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return pub, seed, err
	}
	copy(pub[:], p)
	copy(seed[:], priv.Seed())
	return pub, seed, nil
}

func TestGenerateX25519Keypair(t *testing.T) {
	priv1, pub1, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() error = %v", err)
	}

	var zero [KeySize]byte
	if priv1 == zero {
		t.Error("private key is zero")
	}
	if pub1 == zero {
		t.Error("public key is zero")
	}

	priv2, pub2, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() second call error = %v", err)
	}
	if priv1 == priv2 {
		t.Error("two generated private keys are identical")
	}
	if pub1 == pub2 {
		t.Error("two generated public keys are identical")
	}
}

func TestComputeSharedSecret(t *testing.T) {
	privA, pubA, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() A error = %v", err)
	}
	privB, pubB, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() B error = %v", err)
	}

	secretA, err := ComputeSharedSecret(privA, pubB)
	if err != nil {
		t.Fatalf("ComputeSharedSecret(A, pubB) error = %v", err)
	}
	secretB, err := ComputeSharedSecret(privB, pubA)
	if err != nil {
		t.Fatalf("ComputeSharedSecret(B, pubA) error = %v", err)
	}

	if secretA != secretB {
		t.Error("shared secrets do not match")
	}

	var zero [KeySize]byte
	if secretA == zero {
		t.Error("shared secret is zero")
	}
}

func TestComputeSharedSecret_ZeroKey(t *testing.T) {
	priv, _, err := GenerateX25519Keypair()
	if err != nil {
		t.Fatalf("GenerateX25519Keypair() error = %v", err)
	}

	var zero [KeySize]byte
	_, err = ComputeSharedSecret(priv, zero)
	if err != ErrInvalidPublicKey {
		t.Errorf("ComputeSharedSecret with zero public key: got %v, want ErrInvalidPublicKey", err)
	}
}

func TestDeriveKey(t *testing.T) {
	privA, pubA, _ := GenerateX25519Keypair()
	privB, pubB, _ := GenerateX25519Keypair()

	secretA, _ := ComputeSharedSecret(privA, pubB)
	secretB, _ := ComputeSharedSecret(privB, pubA)

	keyA, err := DeriveKey(secretA, KeyExchangeInfo)
	if err != nil {
		t.Fatalf("DeriveKey A error = %v", err)
	}
	keyB, err := DeriveKey(secretB, KeyExchangeInfo)
	if err != nil {
		t.Fatalf("DeriveKey B error = %v", err)
	}

	if keyA != keyB {
		t.Error("derived keys from the same shared secret and info differ")
	}

	keyOther, _ := DeriveKey(secretA, "some-other-context")
	if keyA == keyOther {
		t.Error("different info strings should derive different keys")
	}
}

func TestSealOpen_Roundtrip(t *testing.T) {
	var key [KeySize]byte
	copy(key[:], bytes.Repeat([]byte{0x42}, KeySize))

	cases := []struct {
		name      string
		plaintext []byte
	}{
		{"empty", []byte{}},
		{"short", []byte("hi")},
		{"medium", []byte("the quick brown fox jumps over the lazy dog")},
		{"long", bytes.Repeat([]byte("A"), 10000)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sealed, err := Seal(key, tc.plaintext)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if len(sealed) != len(tc.plaintext)+EncryptionOverhead {
				t.Errorf("sealed length = %d, want %d", len(sealed), len(tc.plaintext)+EncryptionOverhead)
			}

			plaintext, err := Open(key, sealed)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if !bytes.Equal(plaintext, tc.plaintext) {
				t.Errorf("Open() = %q, want %q", plaintext, tc.plaintext)
			}
		})
	}
}

func TestSeal_UniqueNoncePerCall(t *testing.T) {
	var key [KeySize]byte
	plaintext := []byte("same plaintext every time")

	sealed1, _ := Seal(key, plaintext)
	sealed2, _ := Seal(key, plaintext)

	if bytes.Equal(sealed1, sealed2) {
		t.Error("two Seal() calls on the same plaintext produced identical output; nonce is not being randomized")
	}
}

func TestOpen_TooShort(t *testing.T) {
	var key [KeySize]byte
	_, err := Open(key, make([]byte, EncryptionOverhead-1))
	if err != ErrCiphertextTooShort {
		t.Errorf("Open() error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestOpen_Tampered(t *testing.T) {
	var key [KeySize]byte
	sealed, _ := Seal(key, []byte("secret message"))
	sealed[len(sealed)-1] ^= 0xff

	if _, err := Open(key, sealed); err == nil {
		t.Error("Open() with tampered ciphertext should fail")
	}
}

func TestOpen_WrongKey(t *testing.T) {
	var keyA, keyB [KeySize]byte
	keyB[0] = 1

	sealed, _ := Seal(keyA, []byte("secret message"))
	if _, err := Open(keyB, sealed); err == nil {
		t.Error("Open() with wrong key should fail")
	}
}

func TestSealWithNonce_OpenWithNonce_Roundtrip(t *testing.T) {
	var key [KeySize]byte
	nonce, err := RandomNonce()
	if err != nil {
		t.Fatalf("RandomNonce() error = %v", err)
	}

	plaintext := []byte("channel group message")
	ciphertext, err := SealWithNonce(key, nonce, plaintext)
	if err != nil {
		t.Fatalf("SealWithNonce() error = %v", err)
	}

	decrypted, err := OpenWithNonce(key, nonce, ciphertext)
	if err != nil {
		t.Fatalf("OpenWithNonce() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("OpenWithNonce() = %q, want %q", decrypted, plaintext)
	}
}

func TestEd25519ToX25519_SharedSecretMatches(t *testing.T) {
	edPubA, edPrivA, err := generateEd25519(t)
	if err != nil {
		t.Fatalf("generateEd25519 A error = %v", err)
	}
	edPubB, edPrivB, err := generateEd25519(t)
	if err != nil {
		t.Fatalf("generateEd25519 B error = %v", err)
	}

	xPrivA := Ed25519PrivateKeyToX25519(edPrivA)
	xPrivB := Ed25519PrivateKeyToX25519(edPrivB)

	xPubA, err := Ed25519PublicKeyToX25519(edPubA)
	if err != nil {
		t.Fatalf("Ed25519PublicKeyToX25519 A error = %v", err)
	}
	xPubB, err := Ed25519PublicKeyToX25519(edPubB)
	if err != nil {
		t.Fatalf("Ed25519PublicKeyToX25519 B error = %v", err)
	}

	secretA, err := ComputeSharedSecret(xPrivA, xPubB)
	if err != nil {
		t.Fatalf("ComputeSharedSecret A error = %v", err)
	}
	secretB, err := ComputeSharedSecret(xPrivB, xPubA)
	if err != nil {
		t.Fatalf("ComputeSharedSecret B error = %v", err)
	}

	if secretA != secretB {
		t.Error("ECDH over converted Ed25519 keys did not agree")
	}
}

func TestFingerprint(t *testing.T) {
	var pub [32]byte
	for i := range pub {
		pub[i] = byte(i)
	}

	fp := Fingerprint(pub)
	if len(fp) != 8+2+4 {
		t.Errorf("fingerprint length = %d, want %d", len(fp), 14)
	}
	if fp[8:10] != ".." {
		t.Errorf("fingerprint separator = %q, want \"..\"", fp[8:10])
	}
}

func TestZeroBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	ZeroBytes(data)
	for i, b := range data {
		if b != 0 {
			t.Errorf("byte %d = %d, want 0", i, b)
		}
	}
}

func TestZeroKey(t *testing.T) {
	key := [KeySize]byte{1, 2, 3, 4}
	ZeroKey(&key)
	var zero [KeySize]byte
	if key != zero {
		t.Error("key was not zeroed")
	}
}

func TestEncryptionOverhead(t *testing.T) {
	if EncryptionOverhead != NonceSize+TagSize {
		t.Errorf("EncryptionOverhead = %d, want %d", EncryptionOverhead, NonceSize+TagSize)
	}
	if NonceSize != 24 {
		t.Errorf("NonceSize = %d, want 24 (XChaCha20-Poly1305)", NonceSize)
	}
}
