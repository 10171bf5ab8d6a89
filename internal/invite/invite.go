// Package invite turns a channel's local state into a portable,
// out-of-band invite code and back: everything a new member needs,
// group key included, to reconstruct and join a channel locally.
package invite

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Womp-Womp/OrderNet/internal/channel"
	"github.com/Womp-Womp/OrderNet/internal/protocol"
)

// Generate encodes state as a portable invite code.
func Generate(state *channel.State) (string, error) {
	allowed := make([]string, 0, len(state.Config.AllowedMembers))
	for hexKey := range state.Config.AllowedMembers {
		allowed = append(allowed, hexKey)
	}

	code, err := protocol.EncodeInviteCode(protocol.InviteCode{
		ID:               state.Config.ID,
		Name:             state.Config.Name,
		CreatorPubKeyHex: state.Config.CreatorPubKeyHex,
		VouchThreshold:   state.Config.VouchThreshold,
		AccessMode:       state.Config.AccessMode,
		InviteOnly:       state.Config.InviteOnly,
		AllowedMembers:   allowed,
		CreatedAt:        state.Config.CreatedAt,
		GroupKeyHex:      hex.EncodeToString(state.GroupKey[:]),
	})
	if err != nil {
		return "", fmt.Errorf("encode invite code: %w", err)
	}
	return code, nil
}

// Consume decodes code and joins the channel it describes via mgr,
// returning the resulting local state. An invalid code is reported as an
// error, not a panic; callers that show this to a user should treat it
// as "bad invite code" rather than a crash.
func Consume(code string, mgr *channel.Manager) (*channel.State, error) {
	ic, err := protocol.DecodeInviteCode(code)
	if err != nil {
		return nil, err
	}

	groupKeyBytes, err := hex.DecodeString(ic.GroupKeyHex)
	if err != nil || len(groupKeyBytes) != channel.GroupKeySize {
		return nil, fmt.Errorf("%w: malformed group key", protocol.ErrInvalidInviteCode)
	}
	var groupKey [channel.GroupKeySize]byte
	copy(groupKey[:], groupKeyBytes)

	allowed := make(map[string]struct{}, len(ic.AllowedMembers))
	for _, hexKey := range ic.AllowedMembers {
		allowed[strings.ToLower(hexKey)] = struct{}{}
	}

	cfg := channel.Config{
		ID:               ic.ID,
		Name:             ic.Name,
		CreatorPubKeyHex: strings.ToLower(ic.CreatorPubKeyHex),
		VouchThreshold:   ic.VouchThreshold,
		CreatedAt:        ic.CreatedAt,
		AccessMode:       ic.AccessMode,
		InviteOnly:       ic.InviteOnly,
		AllowedMembers:   allowed,
	}

	state, err := mgr.JoinChannel(cfg, groupKey)
	if err != nil {
		return nil, fmt.Errorf("join channel from invite: %w", err)
	}
	return state, nil
}
