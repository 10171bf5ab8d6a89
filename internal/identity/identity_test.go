package identity

import (
	"path/filepath"
	"testing"

	"github.com/Womp-Womp/OrderNet/internal/crypto"
	"github.com/Womp-Womp/OrderNet/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ordernet.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoad_CreatesFreshIdentity(t *testing.T) {
	db := openTestStore(t)

	id, err := Load(db, "", "alice")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var zero [32]byte
	if id.PublicKey() == zero {
		t.Error("fresh identity has a zero public key")
	}
	if id.Nickname() != "alice" {
		t.Errorf("Nickname() = %q, want %q", id.Nickname(), "alice")
	}
}

func TestLoad_PersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordernet.db")

	db1, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	id1, err := Load(db1, "my-passphrase", "alice")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	pub1 := id1.PublicKey()
	db1.Close()

	db2, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open() second error = %v", err)
	}
	defer db2.Close()

	id2, err := Load(db2, "my-passphrase", "alice")
	if err != nil {
		t.Fatalf("Load() second error = %v", err)
	}

	if id2.PublicKey() != pub1 {
		t.Error("restarting with the same passphrase produced a different public key")
	}
}

func TestLoad_WrongPassphraseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordernet.db")

	db1, _ := store.Open(path)
	if _, err := Load(db1, "correct-passphrase", "alice"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	db1.Close()

	db2, _ := store.Open(path)
	defer db2.Close()

	_, err := Load(db2, "wrong-passphrase", "alice")
	if err != ErrIdentityLocked {
		t.Errorf("Load() with wrong passphrase: error = %v, want ErrIdentityLocked", err)
	}
}

func TestLoad_DefaultPassphraseWhenUnconfigured(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordernet.db")

	db1, _ := store.Open(path)
	if _, err := Load(db1, "", "alice"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	db1.Close()

	db2, _ := store.Open(path)
	defer db2.Close()

	if _, err := Load(db2, crypto.DefaultPassphrase, "alice"); err != nil {
		t.Errorf("Load() with explicit default passphrase failed: %v", err)
	}
}

func TestSetNickname_PersistsAndNormalizes(t *testing.T) {
	db := openTestStore(t)
	id, err := Load(db, "", "alice")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := id.SetNickname("bob"); err != nil {
		t.Fatalf("SetNickname() error = %v", err)
	}
	if id.Nickname() != "bob" {
		t.Errorf("Nickname() = %q, want %q", id.Nickname(), "bob")
	}

	row, err := db.LoadIdentity()
	if err != nil {
		t.Fatalf("LoadIdentity() error = %v", err)
	}
	if row.Nickname != "bob" {
		t.Errorf("persisted nickname = %q, want %q", row.Nickname, "bob")
	}

	// "e" plus a combining acute accent composes to a single "é" under NFC.
	if err := id.SetNickname("José"); err != nil {
		t.Fatalf("SetNickname() error = %v", err)
	}
	if id.Nickname() != "José" {
		t.Errorf("Nickname() = %q, want NFC-composed %q", id.Nickname(), "José")
	}
}

func TestFingerprint_Format(t *testing.T) {
	db := openTestStore(t)
	id, err := Load(db, "", "alice")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	fp := id.Fingerprint()
	if len(fp) != 14 || fp[8:10] != ".." {
		t.Errorf("Fingerprint() = %q, want format xxxxxxxx..xxxx", fp)
	}
}

func TestSign_VerifiesUnderPublicKey(t *testing.T) {
	db := openTestStore(t)
	id, err := Load(db, "", "alice")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	message := []byte("hello channel")
	sig := id.Sign(message)
	if !crypto.Verify(id.PublicKey(), message, sig) {
		t.Error("signature produced by Identity.Sign did not verify")
	}
}
