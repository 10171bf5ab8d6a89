package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// InviteCodeVersion is the only invite-code schema version this node
// produces or accepts.
const InviteCodeVersion = 1

// InviteCode is the portable, out-of-band bundle a channel creator hands
// to a new member: enough to fully reconstruct the channel locally,
// including its group key.
type InviteCode struct {
	Version          int      `json:"version"`
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	CreatorPubKeyHex string   `json:"creatorPubKeyHex"`
	VouchThreshold   int      `json:"vouchThreshold"`
	AccessMode       string   `json:"accessMode"`
	InviteOnly       bool     `json:"inviteOnly"`
	AllowedMembers   []string `json:"allowedMembers"`
	CreatedAt        int64    `json:"createdAt"`
	GroupKeyHex      string   `json:"groupKeyHex"`
}

// EncodeInviteCode serializes an InviteCode as base64url of its UTF-8 JSON
// bytes.
func EncodeInviteCode(c InviteCode) (string, error) {
	c.Version = InviteCodeVersion
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal invite code: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// ErrInvalidInviteCode is returned when a user-supplied invite code
// cannot be decoded; callers treat this as "return null to the caller",
// never a fatal error.
var ErrInvalidInviteCode = fmt.Errorf("protocol: invalid invite code")

// DecodeInviteCode parses a base64url invite code, defaulting missing
// optional fields (accessMode to "public", allowedMembers to empty)
// rather than rejecting them, per the invite-code fallback rule.
func DecodeInviteCode(code string) (InviteCode, error) {
	var c InviteCode

	data, err := base64.URLEncoding.DecodeString(code)
	if err != nil {
		return c, fmt.Errorf("%w: base64: %v", ErrInvalidInviteCode, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: json: %v", ErrInvalidInviteCode, err)
	}
	if c.ID == "" || c.CreatorPubKeyHex == "" || c.GroupKeyHex == "" {
		return c, fmt.Errorf("%w: missing required field", ErrInvalidInviteCode)
	}
	if c.AccessMode == "" {
		c.AccessMode = "public"
	}
	if c.AllowedMembers == nil {
		c.AllowedMembers = []string{}
	}
	return c, nil
}
