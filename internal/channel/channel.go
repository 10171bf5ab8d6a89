// Package channel implements in-memory channel state mirrored to the
// durable store: creation, joining, membership, and access control for
// public, private, and direct-message channels.
package channel

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Womp-Womp/OrderNet/internal/store"
)

// Access modes a channel can operate under.
const (
	AccessPublic  = "public"
	AccessPrivate = "private"
	AccessDM      = "dm"
)

// DefaultVouchThreshold is used by createChannel when the caller does not
// override it.
const DefaultVouchThreshold = 2

// GroupKeySize is the size, in bytes, of a channel's symmetric group key.
const GroupKeySize = 32

// Config is a channel's (logically) immutable metadata.
type Config struct {
	ID              string
	Name            string
	CreatorPubKeyHex string
	VouchThreshold  int
	CreatedAt       int64
	AccessMode      string
	InviteOnly      bool
	AllowedMembers  map[string]struct{}
}

// State is the authoritative in-memory runtime copy of a channel: config,
// group key, and the set of known members.
type State struct {
	Config   Config
	GroupKey [GroupKeySize]byte
	Members  map[string]struct{}
}

// Manager indexes all known channels by id and mirrors them to the
// durable store.
type Manager struct {
	mu       sync.RWMutex
	channels map[string]*State

	db       *store.Store
	selfHex  string
	now      func() int64
}

// NewManager loads all channels from db and inserts selfHex into each
// channel's membership set, matching the durable allowed-members policy.
func NewManager(db *store.Store, selfHex string) (*Manager, error) {
	m := &Manager{
		channels: make(map[string]*State),
		db:       db,
		selfHex:  strings.ToLower(selfHex),
		now:      func() int64 { return time.Now().UnixMilli() },
	}

	rows, err := db.ListChannels()
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}

	for _, row := range rows {
		state, err := stateFromRow(row)
		if err != nil {
			return nil, fmt.Errorf("decode channel %q: %w", row.ID, err)
		}
		state.Members[m.selfHex] = struct{}{}
		m.channels[row.ID] = state
	}

	return m, nil
}

func stateFromRow(row store.ChannelRow) (*State, error) {
	groupKey, err := hex.DecodeString(row.GroupKeyHex)
	if err != nil || len(groupKey) != GroupKeySize {
		return nil, fmt.Errorf("malformed group key")
	}

	allowed := make(map[string]struct{}, len(row.AllowedMembers))
	for _, hexKey := range row.AllowedMembers {
		allowed[strings.ToLower(hexKey)] = struct{}{}
	}

	state := &State{
		Config: Config{
			ID:               row.ID,
			Name:             row.Name,
			CreatorPubKeyHex: row.CreatorPubKeyHex,
			VouchThreshold:   row.VouchThreshold,
			CreatedAt:        row.CreatedAt,
			AccessMode:       row.AccessMode,
			InviteOnly:       row.InviteOnly,
			AllowedMembers:   allowed,
		},
		Members: map[string]struct{}{row.CreatorPubKeyHex: {}},
	}
	copy(state.GroupKey[:], groupKey)
	return state, nil
}

func normalizeID(name string) string {
	return strings.TrimPrefix(name, "#")
}

// Get returns a channel's state, or (nil, false) if unknown.
func (m *Manager) Get(id string) (*State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.channels[id]
	return s, ok
}

// CreateChannel creates a public channel named name (the leading '#' is
// stripped), or returns the existing channel of that id unchanged if one
// already exists. threshold<=0 defaults to DefaultVouchThreshold.
func (m *Manager) CreateChannel(name string, threshold int) (*State, error) {
	return m.createChannel(name, threshold, AccessPublic, false, nil)
}

// CreatePrivateChannel creates an invite-only channel whose allowlist is
// the union of the local identity and allowedHexes.
func (m *Manager) CreatePrivateChannel(name string, allowedHexes []string, threshold int) (*State, error) {
	if threshold <= 0 {
		threshold = 1
	}
	return m.createChannel(name, threshold, AccessPrivate, true, allowedHexes)
}

// CreateDmChannel creates (or returns the existing) direct-message
// channel with peerHex. The channel id is derived from both endpoints'
// hex fingerprints sorted lexicographically, so both sides compute the
// same id regardless of who initiates.
func (m *Manager) CreateDmChannel(peerHex string) (*State, error) {
	self := strings.ToLower(m.selfHex)
	peer := strings.ToLower(peerHex)

	endpoints := []string{self, peer}
	sort.Strings(endpoints)

	id := "dm-" + shortHex(endpoints[0]) + "-" + shortHex(endpoints[1])

	m.mu.RLock()
	existing, ok := m.channels[id]
	m.mu.RUnlock()
	if ok {
		return existing, nil
	}

	return m.createChannel(id, 1, AccessDM, true, []string{peer})
}

func shortHex(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}

func (m *Manager) createChannel(nameOrID string, threshold int, accessMode string, inviteOnly bool, extraAllowed []string) (*State, error) {
	id := normalizeID(nameOrID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.channels[id]; ok {
		return existing, nil
	}

	if threshold <= 0 {
		threshold = DefaultVouchThreshold
	}

	groupKey, err := generateGroupKey()
	if err != nil {
		return nil, fmt.Errorf("generate group key: %w", err)
	}

	allowed := map[string]struct{}{m.selfHex: {}}
	for _, hexKey := range extraAllowed {
		allowed[strings.ToLower(hexKey)] = struct{}{}
	}

	state := &State{
		Config: Config{
			ID:               id,
			Name:             "#" + id,
			CreatorPubKeyHex: m.selfHex,
			VouchThreshold:   threshold,
			CreatedAt:        m.now(),
			AccessMode:       accessMode,
			InviteOnly:       inviteOnly,
			AllowedMembers:   allowed,
		},
		GroupKey: groupKey,
		Members:  map[string]struct{}{m.selfHex: {}},
	}

	if err := m.persist(state); err != nil {
		return nil, err
	}

	m.channels[id] = state
	return state, nil
}

// JoinChannel accepts a full config and group key, from an invite code or
// a key-exchange delivery, persists it, and inserts self into members.
func (m *Manager) JoinChannel(cfg Config, groupKey [GroupKeySize]byte) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg.AllowedMembers[m.selfHex] = struct{}{}

	state := &State{
		Config:   cfg,
		GroupKey: groupKey,
		Members:  map[string]struct{}{m.selfHex: {}, cfg.CreatorPubKeyHex: {}},
	}

	if err := m.persist(state); err != nil {
		return nil, err
	}

	m.channels[cfg.ID] = state
	return state, nil
}

// LeaveChannel removes both the in-memory and durable state for a
// channel.
func (m *Manager) LeaveChannel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.channels, id)
	if err := m.db.DeleteChannel(id); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// InviteMember adds peerHex to a channel's allowlist. Public,
// not-yet-invite-only channels are a no-op that still returns success,
// matching an open channel's "anyone can join" posture.
func (m *Manager) InviteMember(id, peerHex string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.channels[id]
	if !ok {
		return fmt.Errorf("channel %q not found", id)
	}

	if state.Config.AccessMode == AccessPublic && !state.Config.InviteOnly {
		return nil
	}

	state.Config.AllowedMembers[strings.ToLower(peerHex)] = struct{}{}
	state.Config.InviteOnly = true

	return m.persist(state)
}

// HasAccess reports whether peerHex may send/receive on channel id: true
// when the channel is not invite-only, or peerHex is on the allowlist.
func (m *Manager) HasAccess(id, peerHex string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.channels[id]
	if !ok {
		return false
	}
	if !state.Config.InviteOnly {
		return true
	}
	_, allowed := state.Config.AllowedMembers[strings.ToLower(peerHex)]
	return allowed
}

// persist writes a channel's current state to the durable store. Callers
// must hold m.mu.
func (m *Manager) persist(state *State) error {
	allowed := make([]string, 0, len(state.Config.AllowedMembers))
	for hexKey := range state.Config.AllowedMembers {
		allowed = append(allowed, hexKey)
	}
	sort.Strings(allowed)

	row := store.ChannelRow{
		ID:               state.Config.ID,
		Name:             state.Config.Name,
		CreatorPubKeyHex: state.Config.CreatorPubKeyHex,
		VouchThreshold:   state.Config.VouchThreshold,
		CreatedAt:        state.Config.CreatedAt,
		AccessMode:       state.Config.AccessMode,
		InviteOnly:       state.Config.InviteOnly,
		AllowedMembers:   allowed,
		GroupKeyHex:      hex.EncodeToString(state.GroupKey[:]),
	}
	if err := m.db.SaveChannel(row); err != nil {
		return fmt.Errorf("persist channel: %w", err)
	}
	return nil
}

func generateGroupKey() ([GroupKeySize]byte, error) {
	var key [GroupKeySize]byte
	_, err := io.ReadFull(rand.Reader, key[:])
	return key, err
}
