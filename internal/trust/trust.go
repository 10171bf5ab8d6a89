// Package trust implements vouches and join requests: signed attestations
// that cross a per-channel threshold to admit a new member.
package trust

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Womp-Womp/OrderNet/internal/crypto"
	"github.com/Womp-Womp/OrderNet/internal/protocol"
	"github.com/Womp-Womp/OrderNet/internal/store"
)

// Engine evaluates and persists vouches and join requests.
type Engine struct {
	db  *store.Store
	now func() int64
}

// NewEngine creates a trust engine backed by db.
func NewEngine(db *store.Store) *Engine {
	return &Engine{db: db, now: func() int64 { return time.Now().UnixMilli() }}
}

// Vouch is an in-memory signed attestation (voucher, vouchee, channel).
type Vouch struct {
	VoucherPubKey [32]byte
	VoucheePubKey [32]byte
	ChannelID     string
	Timestamp     int64
	Signature     [64]byte
}

func (v Vouch) signingPayload() ([]byte, error) {
	return json.Marshal(protocol.VouchSigningPayload{
		VoucherPubKey: protocol.Bytes(v.VoucherPubKey[:]),
		VoucheePubKey: protocol.Bytes(v.VoucheePubKey[:]),
		ChannelID:     v.ChannelID,
		Timestamp:     v.Timestamp,
	})
}

// CreateVouch signs and saves a fresh vouch from voucherPub (using
// voucherSeed) for voucheePub on channelID, then recomputes the
// corresponding join request's vouches_received counter. A double vouch
// by the same voucher for the same vouchee in the same channel is a
// silent no-op (composite primary key conflict).
func (e *Engine) CreateVouch(voucherSeed [32]byte, voucherPub, voucheePub [32]byte, channelID string) (Vouch, error) {
	v := Vouch{
		VoucherPubKey: voucherPub,
		VoucheePubKey: voucheePub,
		ChannelID:     channelID,
		Timestamp:     e.now(),
	}

	payload, err := v.signingPayload()
	if err != nil {
		return Vouch{}, fmt.Errorf("build vouch signing payload: %w", err)
	}
	v.Signature = crypto.Sign(voucherSeed, payload)

	if err := e.saveVouch(v); err != nil {
		return Vouch{}, err
	}
	return v, nil
}

// VerifyVouch reconstructs the canonical signing payload and checks v's
// signature against v.VoucherPubKey.
func (e *Engine) VerifyVouch(v Vouch) bool {
	payload, err := v.signingPayload()
	if err != nil {
		return false
	}
	return crypto.Verify(v.VoucherPubKey, payload, v.Signature)
}

// SaveVouch verifies v and, if valid, saves it and recomputes the
// vouches_received counter on the matching join request. An unverifiable
// vouch is discarded, not saved.
func (e *Engine) SaveVouch(v Vouch) (bool, error) {
	if !e.VerifyVouch(v) {
		return false, nil
	}
	if err := e.saveVouch(v); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) saveVouch(v Vouch) error {
	row := store.VouchRow{
		VoucherPubKeyHex: hex.EncodeToString(v.VoucherPubKey[:]),
		VoucheePubKeyHex: hex.EncodeToString(v.VoucheePubKey[:]),
		ChannelID:        v.ChannelID,
		Timestamp:        v.Timestamp,
		SignatureHex:     hex.EncodeToString(v.Signature[:]),
	}
	if _, err := e.db.SaveVouch(row); err != nil {
		return fmt.Errorf("save vouch: %w", err)
	}

	count, err := e.db.CountVouches(row.VoucheePubKeyHex, row.ChannelID)
	if err != nil {
		return fmt.Errorf("count vouches: %w", err)
	}
	if err := e.db.UpdateVouchesReceived(row.VoucheePubKeyHex, row.ChannelID, count); err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("update vouches received: %w", err)
	}
	return nil
}

// VouchCount returns how many distinct vouchers have vouched for
// voucheeHex on channelID.
func (e *Engine) VouchCount(voucheeHex, channelID string) (int, error) {
	count, err := e.db.CountVouches(strings.ToLower(voucheeHex), channelID)
	if err != nil {
		return 0, fmt.Errorf("vouch count: %w", err)
	}
	return count, nil
}

// CreateJoinRequest idempotently records requesterPub's intent to join
// channelID, in pending status with a zero vouch count.
func (e *Engine) CreateJoinRequest(requesterPub [32]byte, channelID string) error {
	requesterHex := hex.EncodeToString(requesterPub[:])
	if err := e.db.CreateJoinRequest(requesterHex, channelID, e.now()); err != nil {
		return fmt.Errorf("create join request: %w", err)
	}
	return nil
}

// ApproveRequest marks a join request approved.
func (e *Engine) ApproveRequest(requesterHex, channelID string) error {
	if err := e.db.ApproveJoinRequest(strings.ToLower(requesterHex), channelID); err != nil {
		return fmt.Errorf("approve join request: %w", err)
	}
	return nil
}

// JoinRequest is the durable state of a pending or resolved membership
// request.
type JoinRequest struct {
	RequesterHex    string
	ChannelID       string
	Timestamp       int64
	VouchesReceived int
	Status          string
}

// GetJoinRequest returns a single join request, or (nil, nil) if unknown.
func (e *Engine) GetJoinRequest(requesterHex, channelID string) (*JoinRequest, error) {
	row, err := e.db.GetJoinRequest(strings.ToLower(requesterHex), channelID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get join request: %w", err)
	}
	return &JoinRequest{
		RequesterHex:    row.RequesterPubKeyHex,
		ChannelID:       row.ChannelID,
		Timestamp:       row.Timestamp,
		VouchesReceived: row.VouchesReceived,
		Status:          row.Status,
	}, nil
}

// TrustEdge is one directed (voucher -> vouchee) edge in a channel's
// trust graph.
type TrustEdge struct {
	VoucherHex string
	VoucheeHex string
}

// GetTrustGraph returns every vouch edge recorded for channelID.
func (e *Engine) GetTrustGraph(channelID string) ([]TrustEdge, error) {
	edges, err := e.db.TrustGraph(channelID)
	if err != nil {
		return nil, fmt.Errorf("trust graph: %w", err)
	}
	out := make([]TrustEdge, len(edges))
	for i, edge := range edges {
		out[i] = TrustEdge{VoucherHex: edge.VoucherPubKeyHex, VoucheeHex: edge.VoucheePubKeyHex}
	}
	return out, nil
}
