// Package identity manages a node's single long-term Ed25519 keypair:
// generating it on first start, decrypting it on subsequent starts, and
// keeping the mutable nickname in sync with the durable store.
package identity

import (
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/Womp-Womp/OrderNet/internal/crypto"
	"github.com/Womp-Womp/OrderNet/internal/store"
)

// ErrIdentityLocked is returned when the configured passphrase cannot
// decrypt the stored private key.
var ErrIdentityLocked = crypto.ErrIdentityLocked

// Identity is a node's long-term keypair plus mutable nickname.
type Identity struct {
	mu sync.RWMutex

	keypair  crypto.IdentityKeypair
	nickname string

	db *store.Store
}

// Load opens the single identity row from db, decrypting it with
// passphrase. If no row exists yet, a fresh keypair is generated, sealed
// under passphrase, and persisted. An empty passphrase is treated as
// crypto.DefaultPassphrase.
func Load(db *store.Store, passphrase string, defaultNickname string) (*Identity, error) {
	if passphrase == "" {
		passphrase = crypto.DefaultPassphrase
	}

	row, err := db.LoadIdentity()
	if err != nil {
		return nil, fmt.Errorf("load identity row: %w", err)
	}

	if row == nil {
		return create(db, passphrase, defaultNickname)
	}

	var salt [crypto.Argon2SaltSize]byte
	saltBytes, err := hex.DecodeString(row.SaltHex)
	if err != nil || len(saltBytes) != crypto.Argon2SaltSize {
		return nil, fmt.Errorf("identity: malformed stored salt")
	}
	copy(salt[:], saltBytes)

	seed, err := crypto.OpenPrivateKey(passphrase, salt, row.SealedPrivateKey)
	if err != nil {
		return nil, ErrIdentityLocked
	}

	kp := crypto.IdentityKeypairFromSeed(seed)
	if hex.EncodeToString(kp.PublicKey[:]) != row.PublicKeyHex {
		return nil, fmt.Errorf("identity: decrypted key does not match stored public key")
	}

	return &Identity{keypair: kp, nickname: row.Nickname, db: db}, nil
}

func create(db *store.Store, passphrase, defaultNickname string) (*Identity, error) {
	defaultNickname = norm.NFC.String(defaultNickname)

	kp, err := crypto.GenerateIdentityKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate identity keypair: %w", err)
	}

	salt, sealed, err := crypto.SealPrivateKey(passphrase, kp.Seed)
	if err != nil {
		return nil, fmt.Errorf("seal private key: %w", err)
	}

	row := store.IdentityRow{
		PublicKeyHex:     hex.EncodeToString(kp.PublicKey[:]),
		SaltHex:          hex.EncodeToString(salt[:]),
		SealedPrivateKey: sealed,
		Nickname:         defaultNickname,
	}
	if err := db.SaveIdentity(row); err != nil {
		return nil, fmt.Errorf("persist identity: %w", err)
	}

	return &Identity{keypair: kp, nickname: defaultNickname, db: db}, nil
}

// PublicKey returns the node's Ed25519 public key.
func (id *Identity) PublicKey() [32]byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.keypair.PublicKey
}

// PublicKeyHex returns the lowercase hex encoding of the public key.
func (id *Identity) PublicKeyHex() string {
	pub := id.PublicKey()
	return hex.EncodeToString(pub[:])
}

// Fingerprint returns the short human-readable fingerprint of the public
// key.
func (id *Identity) Fingerprint() string {
	return crypto.Fingerprint(id.PublicKey())
}

// Sign signs message with the node's private key.
func (id *Identity) Sign(message []byte) [crypto.Ed25519SignatureSize]byte {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.keypair.Sign(message)
}

// Nickname returns the current nickname.
func (id *Identity) Nickname() string {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.nickname
}

// SetNickname updates the in-memory nickname and persists it. The
// nickname is normalized to Unicode NFC so visually identical names
// compare equal regardless of how the sender's client composed them.
func (id *Identity) SetNickname(nickname string) error {
	nickname = norm.NFC.String(nickname)

	id.mu.Lock()
	id.nickname = nickname
	id.mu.Unlock()

	if err := id.db.UpdateNickname(nickname); err != nil {
		return fmt.Errorf("persist nickname: %w", err)
	}
	return nil
}

// Keypair returns a copy of the full keypair, for components (key
// exchange, ECDH) that need the private seed directly.
func (id *Identity) Keypair() crypto.IdentityKeypair {
	id.mu.RLock()
	defer id.mu.RUnlock()
	return id.keypair
}
