package store

import "fmt"

// VouchRow is a durable signed attestation (voucher, vouchee, channel).
type VouchRow struct {
	VoucherPubKeyHex string
	VoucheePubKeyHex string
	ChannelID        string
	Timestamp        int64
	SignatureHex     string
}

// SaveVouch idempotently inserts a vouch keyed on the composite
// (voucher, vouchee, channel) primary key. Returns whether it was newly
// inserted; a double vouch is a no-op that returns false.
func (s *Store) SaveVouch(r VouchRow) (bool, error) {
	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO vouches (voucher_pub_key, vouchee_pub_key, channel_id, timestamp, signature)
		VALUES (?, ?, ?, ?, ?)
	`, r.VoucherPubKeyHex, r.VoucheePubKeyHex, r.ChannelID, r.Timestamp, r.SignatureHex)
	if err != nil {
		return false, fmt.Errorf("save vouch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// CountVouches returns how many distinct vouchers have vouched for
// voucheeHex in channelID.
func (s *Store) CountVouches(voucheeHex, channelID string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM vouches WHERE vouchee_pub_key = ? AND channel_id = ?
	`, voucheeHex, channelID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count vouches: %w", err)
	}
	return count, nil
}

// TrustEdge is one directed (voucher -> vouchee) edge in a channel's trust
// graph.
type TrustEdge struct {
	VoucherPubKeyHex string
	VoucheePubKeyHex string
}

// TrustGraph returns all vouch edges recorded for a channel.
func (s *Store) TrustGraph(channelID string) ([]TrustEdge, error) {
	rows, err := s.db.Query(`
		SELECT voucher_pub_key, vouchee_pub_key FROM vouches WHERE channel_id = ?
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("trust graph: %w", err)
	}
	defer rows.Close()

	var out []TrustEdge
	for rows.Next() {
		var e TrustEdge
		if err := rows.Scan(&e.VoucherPubKeyHex, &e.VoucheePubKeyHex); err != nil {
			return nil, fmt.Errorf("scan trust edge: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
