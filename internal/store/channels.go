package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ChannelRow is the durable form of a channel's config plus its group key.
type ChannelRow struct {
	ID              string
	Name            string
	CreatorPubKeyHex string
	VouchThreshold  int
	CreatedAt       int64
	AccessMode      string
	InviteOnly      bool
	AllowedMembers  []string
	GroupKeyHex     string
}

// SaveChannel inserts or fully replaces a channel's durable row.
func (s *Store) SaveChannel(r ChannelRow) error {
	allowed, err := json.Marshal(r.AllowedMembers)
	if err != nil {
		return fmt.Errorf("marshal allowed members: %w", err)
	}

	inviteOnly := 0
	if r.InviteOnly {
		inviteOnly = 1
	}

	_, err = s.db.Exec(`
		INSERT INTO channels (id, name, creator_pub_key, vouch_threshold, created_at, access_mode, invite_only, allowed_members, group_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			creator_pub_key = excluded.creator_pub_key,
			vouch_threshold = excluded.vouch_threshold,
			access_mode = excluded.access_mode,
			invite_only = excluded.invite_only,
			allowed_members = excluded.allowed_members,
			group_key = excluded.group_key
	`, r.ID, r.Name, r.CreatorPubKeyHex, r.VouchThreshold, r.CreatedAt, r.AccessMode, inviteOnly, string(allowed), r.GroupKeyHex)
	if err != nil {
		return fmt.Errorf("save channel: %w", err)
	}
	return nil
}

// DeleteChannel removes a channel's durable row.
func (s *Store) DeleteChannel(id string) error {
	_, err := s.db.Exec(`DELETE FROM channels WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// GetChannel returns a single channel's durable row, or ErrNotFound.
func (s *Store) GetChannel(id string) (*ChannelRow, error) {
	row := s.db.QueryRow(`
		SELECT id, name, creator_pub_key, vouch_threshold, created_at, access_mode, invite_only, allowed_members, group_key
		FROM channels WHERE id = ?
	`, id)
	return scanChannel(row)
}

// ListChannels returns every durable channel row, used to repopulate
// in-memory channel state on start.
func (s *Store) ListChannels() ([]ChannelRow, error) {
	rows, err := s.db.Query(`
		SELECT id, name, creator_pub_key, vouch_threshold, created_at, access_mode, invite_only, allowed_members, group_key
		FROM channels
	`)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []ChannelRow
	for rows.Next() {
		r, err := scanChannelRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row *sql.Row) (*ChannelRow, error) {
	r, err := scanChannelCommon(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

func scanChannelRows(rows *sql.Rows) (*ChannelRow, error) {
	return scanChannelCommon(rows)
}

func scanChannelCommon(s scanner) (*ChannelRow, error) {
	var r ChannelRow
	var inviteOnly int
	var allowedMembers sql.NullString

	if err := s.Scan(&r.ID, &r.Name, &r.CreatorPubKeyHex, &r.VouchThreshold, &r.CreatedAt,
		&r.AccessMode, &inviteOnly, &allowedMembers, &r.GroupKeyHex); err != nil {
		return nil, err
	}

	r.InviteOnly = inviteOnly != 0
	if allowedMembers.Valid && allowedMembers.String != "" {
		if err := json.Unmarshal([]byte(allowedMembers.String), &r.AllowedMembers); err != nil {
			return nil, fmt.Errorf("unmarshal allowed members: %w", err)
		}
	}
	return &r, nil
}
