package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PeerRow is a durable record of an observed remote participant.
type PeerRow struct {
	PublicKeyHex string
	Nickname     string
	FirstSeen    int64
	LastSeen     int64
	Addresses    []string
}

// UpsertPeer inserts a new peer row, or updates nickname/last_seen/
// addresses on an existing one. first_seen is preserved across updates;
// last_seen only moves forward, matching the presence-monotonicity
// invariant.
func (s *Store) UpsertPeer(r PeerRow) error {
	addresses, err := json.Marshal(r.Addresses)
	if err != nil {
		return fmt.Errorf("marshal addresses: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO peers (public_key, nickname, first_seen, last_seen, addresses)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(public_key) DO UPDATE SET
			nickname = excluded.nickname,
			last_seen = MAX(peers.last_seen, excluded.last_seen),
			addresses = excluded.addresses
	`, r.PublicKeyHex, r.Nickname, r.FirstSeen, r.LastSeen, string(addresses))
	if err != nil {
		return fmt.Errorf("upsert peer: %w", err)
	}
	return nil
}

// GetPeer returns the durable record for a peer, or ErrNotFound.
func (s *Store) GetPeer(publicKeyHex string) (*PeerRow, error) {
	row := s.db.QueryRow(`SELECT public_key, nickname, first_seen, last_seen, addresses FROM peers WHERE public_key = ?`, publicKeyHex)

	var r PeerRow
	var addresses string
	if err := row.Scan(&r.PublicKeyHex, &r.Nickname, &r.FirstSeen, &r.LastSeen, &addresses); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get peer: %w", err)
	}
	if err := json.Unmarshal([]byte(addresses), &r.Addresses); err != nil {
		return nil, fmt.Errorf("unmarshal addresses: %w", err)
	}
	return &r, nil
}

// ListPeers returns every durable peer record.
func (s *Store) ListPeers() ([]PeerRow, error) {
	rows, err := s.db.Query(`SELECT public_key, nickname, first_seen, last_seen, addresses FROM peers`)
	if err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	defer rows.Close()

	var out []PeerRow
	for rows.Next() {
		var r PeerRow
		var addresses string
		if err := rows.Scan(&r.PublicKeyHex, &r.Nickname, &r.FirstSeen, &r.LastSeen, &addresses); err != nil {
			return nil, fmt.Errorf("scan peer: %w", err)
		}
		if err := json.Unmarshal([]byte(addresses), &r.Addresses); err != nil {
			return nil, fmt.Errorf("unmarshal addresses: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
