// Package store provides the durable, embedded-SQLite backing for a node:
// identity, peers, channels, messages, vouches, and join requests. It is
// the single source of truth that in-memory state (identity, channel
// manager) is rehydrated from on start.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single SQLite database connection and the node's schema.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path, enables WAL mode
// and foreign key enforcement, and runs schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps WAL + the single-threaded-cooperative
	// write model (spec §5) honest: no two goroutines ever hold a
	// connection mid-write.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return s, nil
}

// Close releases the underlying database handle. Idempotent.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the base schema and then any forward-only column
// additions, absorbing "already exists" failures and failing hard on
// anything else.
func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS identity (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			public_key TEXT NOT NULL,
			salt TEXT NOT NULL,
			sealed_private_key TEXT NOT NULL,
			nickname TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS peers (
			public_key TEXT PRIMARY KEY,
			nickname TEXT NOT NULL DEFAULT '',
			first_seen INTEGER NOT NULL,
			last_seen INTEGER NOT NULL,
			addresses TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			creator_pub_key TEXT NOT NULL,
			vouch_threshold INTEGER NOT NULL DEFAULT 2,
			created_at INTEGER NOT NULL,
			group_key TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL REFERENCES channels(id),
			nonce TEXT NOT NULL,
			ciphertext TEXT NOT NULL,
			sender_pub_key TEXT NOT NULL,
			signature TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_timestamp ON messages(channel_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_message_id ON messages(message_id)`,
		`CREATE TABLE IF NOT EXISTS vouches (
			voucher_pub_key TEXT NOT NULL,
			vouchee_pub_key TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			signature TEXT NOT NULL,
			PRIMARY KEY (voucher_pub_key, vouchee_pub_key, channel_id)
		)`,
		`CREATE TABLE IF NOT EXISTS join_requests (
			requester_pub_key TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			vouches_received INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			PRIMARY KEY (requester_pub_key, channel_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	// Forward-only additive migration: these columns did not exist in an
	// earlier schema revision. Absorb "duplicate column" on databases that
	// already have them.
	alters := []string{
		`ALTER TABLE channels ADD COLUMN access_mode TEXT NOT NULL DEFAULT 'public'`,
		`ALTER TABLE channels ADD COLUMN invite_only INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE channels ADD COLUMN allowed_members TEXT`,
	}
	for _, stmt := range alters {
		if _, err := s.db.Exec(stmt); err != nil {
			if isDuplicateColumnError(err) {
				continue
			}
			return err
		}
	}

	return nil
}

func isDuplicateColumnError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column")
}

// ErrNotFound is returned by point lookups that find no row.
var ErrNotFound = errors.New("store: not found")
