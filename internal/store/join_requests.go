package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// Join request status values.
const (
	JoinRequestPending  = "pending"
	JoinRequestApproved = "approved"
	JoinRequestDenied   = "denied"
)

// JoinRequestRow is the durable record of a pending or resolved request to
// join a channel.
type JoinRequestRow struct {
	RequesterPubKeyHex string
	ChannelID          string
	Timestamp          int64
	VouchesReceived    int
	Status             string
}

// CreateJoinRequest idempotently inserts a pending join request.
func (s *Store) CreateJoinRequest(requesterHex, channelID string, timestamp int64) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO join_requests (requester_pub_key, channel_id, timestamp, vouches_received, status)
		VALUES (?, ?, ?, 0, ?)
	`, requesterHex, channelID, timestamp, JoinRequestPending)
	if err != nil {
		return fmt.Errorf("create join request: %w", err)
	}
	return nil
}

// UpdateVouchesReceived sets the vouches_received counter for a join
// request, recomputed by the caller from CountVouches.
func (s *Store) UpdateVouchesReceived(requesterHex, channelID string, count int) error {
	_, err := s.db.Exec(`
		UPDATE join_requests SET vouches_received = ? WHERE requester_pub_key = ? AND channel_id = ?
	`, count, requesterHex, channelID)
	if err != nil {
		return fmt.Errorf("update vouches received: %w", err)
	}
	return nil
}

// ApproveJoinRequest marks a join request approved.
func (s *Store) ApproveJoinRequest(requesterHex, channelID string) error {
	_, err := s.db.Exec(`
		UPDATE join_requests SET status = ? WHERE requester_pub_key = ? AND channel_id = ?
	`, JoinRequestApproved, requesterHex, channelID)
	if err != nil {
		return fmt.Errorf("approve join request: %w", err)
	}
	return nil
}

// GetJoinRequest returns a single join request, or ErrNotFound.
func (s *Store) GetJoinRequest(requesterHex, channelID string) (*JoinRequestRow, error) {
	row := s.db.QueryRow(`
		SELECT requester_pub_key, channel_id, timestamp, vouches_received, status
		FROM join_requests WHERE requester_pub_key = ? AND channel_id = ?
	`, requesterHex, channelID)

	var r JoinRequestRow
	if err := row.Scan(&r.RequesterPubKeyHex, &r.ChannelID, &r.Timestamp, &r.VouchesReceived, &r.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get join request: %w", err)
	}
	return &r, nil
}
