package crypto

import (
	"bytes"
	"testing"
)

func TestSealOpenPrivateKey_Roundtrip(t *testing.T) {
	var seed [32]byte
	for i := range seed {
		seed[i] = byte(i)
	}

	salt, sealed, err := SealPrivateKey("correct horse battery staple", seed)
	if err != nil {
		t.Fatalf("SealPrivateKey() error = %v", err)
	}

	recovered, err := OpenPrivateKey("correct horse battery staple", salt, sealed)
	if err != nil {
		t.Fatalf("OpenPrivateKey() error = %v", err)
	}
	if recovered != seed {
		t.Error("recovered seed does not match original")
	}
}

func TestOpenPrivateKey_WrongPassphrase(t *testing.T) {
	var seed [32]byte
	seed[0] = 1

	salt, sealed, err := SealPrivateKey(DefaultPassphrase, seed)
	if err != nil {
		t.Fatalf("SealPrivateKey() error = %v", err)
	}

	_, err = OpenPrivateKey("wrong passphrase", salt, sealed)
	if err != ErrIdentityLocked {
		t.Errorf("OpenPrivateKey() error = %v, want ErrIdentityLocked", err)
	}
}

func TestSealPrivateKey_DifferentSaltEachTime(t *testing.T) {
	var seed [32]byte
	salt1, sealed1, _ := SealPrivateKey(DefaultPassphrase, seed)
	salt2, sealed2, _ := SealPrivateKey(DefaultPassphrase, seed)

	if salt1 == salt2 {
		t.Error("two calls to SealPrivateKey produced the same salt")
	}
	if bytes.Equal(sealed1, sealed2) {
		t.Error("two calls to SealPrivateKey produced identical ciphertext")
	}
}

func TestDerivePassphraseKey_Deterministic(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}

	key1 := DerivePassphraseKey("shared-passphrase", salt)
	key2 := DerivePassphraseKey("shared-passphrase", salt)
	if key1 != key2 {
		t.Error("DerivePassphraseKey is not deterministic for the same passphrase and salt")
	}

	key3 := DerivePassphraseKey("different-passphrase", salt)
	if key1 == key3 {
		t.Error("different passphrases produced the same derived key")
	}
}

func TestNewSalt_Unique(t *testing.T) {
	salt1, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}
	salt2, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt() error = %v", err)
	}
	if salt1 == salt2 {
		t.Error("two calls to NewSalt produced identical salts")
	}
}
