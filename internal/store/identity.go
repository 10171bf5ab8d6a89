package store

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// IdentityRow is the single persisted row (id=1) holding a node's
// long-term keypair, encrypted at rest.
type IdentityRow struct {
	PublicKeyHex      string
	SaltHex           string
	SealedPrivateKey  []byte
	Nickname          string
}

// LoadIdentity returns the stored identity row, or (nil, nil) if none has
// been created yet.
func (s *Store) LoadIdentity() (*IdentityRow, error) {
	row := s.db.QueryRow(`SELECT public_key, salt, sealed_private_key, nickname FROM identity WHERE id = 1`)

	var r IdentityRow
	var sealedHex string
	if err := row.Scan(&r.PublicKeyHex, &r.SaltHex, &sealedHex, &r.Nickname); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}

	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return nil, fmt.Errorf("decode sealed private key: %w", err)
	}
	r.SealedPrivateKey = sealed
	return &r, nil
}

// SaveIdentity inserts the identity row. It is only ever called once per
// database, when no identity exists yet.
func (s *Store) SaveIdentity(r IdentityRow) error {
	_, err := s.db.Exec(
		`INSERT INTO identity (id, public_key, salt, sealed_private_key, nickname) VALUES (1, ?, ?, ?, ?)`,
		r.PublicKeyHex, r.SaltHex, hex.EncodeToString(r.SealedPrivateKey), r.Nickname,
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// UpdateNickname persists a nickname change for the single identity row.
func (s *Store) UpdateNickname(nickname string) error {
	_, err := s.db.Exec(`UPDATE identity SET nickname = ? WHERE id = 1`, nickname)
	if err != nil {
		return fmt.Errorf("update nickname: %w", err)
	}
	return nil
}
