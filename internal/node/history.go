package node

import (
	"encoding/hex"
	"encoding/json"

	"github.com/Womp-Womp/OrderNet/internal/channel"
	"github.com/Womp-Womp/OrderNet/internal/crypto"
	"github.com/Womp-Womp/OrderNet/internal/events"
	"github.com/Womp-Womp/OrderNet/internal/protocol"
	"github.com/Womp-Womp/OrderNet/internal/store"
)

// decryptHistoryRow decrypts a single stored message row under state's
// current group key. A row that fails to decode or decrypt (e.g. it was
// written under a since-rotated key) is skipped rather than surfaced as
// an error, so one bad row does not break the rest of the history.
func decryptHistoryRow(state *channel.State, r store.MessageRow) (events.Message, bool) {
	nonceBytes, err := hex.DecodeString(r.NonceHex)
	if err != nil || len(nonceBytes) != crypto.NonceSize {
		return events.Message{}, false
	}
	var nonce [crypto.NonceSize]byte
	copy(nonce[:], nonceBytes)

	ciphertext, err := hex.DecodeString(r.CiphertextHex)
	if err != nil {
		return events.Message{}, false
	}

	plaintextBytes, err := crypto.OpenWithNonce(state.GroupKey, nonce, ciphertext)
	if err != nil {
		return events.Message{}, false
	}

	var plaintext protocol.ChatPlaintext
	if err := json.Unmarshal(plaintextBytes, &plaintext); err != nil {
		return events.Message{}, false
	}

	return events.Message{
		ChannelID:  r.ChannelID,
		MessageID:  r.MessageID,
		Content:    plaintext.Content,
		SenderHex:  r.SenderPubKeyHex,
		SenderNick: plaintext.SenderNick,
		Timestamp:  r.Timestamp,
	}, true
}
