package store

import "fmt"

// MessageRow is the durable, at-rest form of an EncryptedMessage.
type MessageRow struct {
	MessageID       string
	ChannelID       string
	NonceHex        string
	CiphertextHex   string
	SenderPubKeyHex string
	SignatureHex    string
	Timestamp       int64
}

// SaveMessage idempotently inserts a message, keyed on message_id.
// Returns whether a row was actually inserted (false on a duplicate).
func (s *Store) SaveMessage(r MessageRow) (bool, error) {
	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO messages (message_id, channel_id, nonce, ciphertext, sender_pub_key, signature, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.MessageID, r.ChannelID, r.NonceHex, r.CiphertextHex, r.SenderPubKeyHex, r.SignatureHex, r.Timestamp)
	if err != nil {
		return false, fmt.Errorf("save message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// MessageExists reports whether a message with the given id has already
// been stored, for the dedup check on receive.
func (s *Store) MessageExists(messageID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM messages WHERE message_id = ?`, messageID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check message exists: %w", err)
	}
	return count > 0, nil
}

// ListMessages returns a channel's messages ordered oldest-first, used to
// rebuild channel history on restart.
func (s *Store) ListMessages(channelID string) ([]MessageRow, error) {
	rows, err := s.db.Query(`
		SELECT message_id, channel_id, nonce, ciphertext, sender_pub_key, signature, timestamp
		FROM messages WHERE channel_id = ? ORDER BY timestamp ASC
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var r MessageRow
		if err := rows.Scan(&r.MessageID, &r.ChannelID, &r.NonceHex, &r.CiphertextHex, &r.SenderPubKeyHex, &r.SignatureHex, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
