package channel

import (
	"path/filepath"
	"testing"

	"github.com/Womp-Womp/OrderNet/internal/store"
)

func newTestManager(t *testing.T, selfHex string) *Manager {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "ordernet.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m, err := NewManager(db, selfHex)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m
}

func TestCreateChannel_IsIdempotent(t *testing.T) {
	m := newTestManager(t, "aa")

	s1, err := m.CreateChannel("#general", 0)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	if s1.Config.ID != "general" {
		t.Errorf("ID = %q, want %q (leading # stripped)", s1.Config.ID, "general")
	}
	if s1.Config.VouchThreshold != DefaultVouchThreshold {
		t.Errorf("VouchThreshold = %d, want %d", s1.Config.VouchThreshold, DefaultVouchThreshold)
	}

	s2, err := m.CreateChannel("general", 5)
	if err != nil {
		t.Fatalf("CreateChannel() second call error = %v", err)
	}
	if s2.GroupKey != s1.GroupKey {
		t.Error("calling CreateChannel twice regenerated the group key")
	}
	if s2.Config.VouchThreshold != DefaultVouchThreshold {
		t.Error("second CreateChannel call should not override existing threshold")
	}
}

func TestCreatePrivateChannel_RestrictsAccess(t *testing.T) {
	m := newTestManager(t, "aa")

	s, err := m.CreatePrivateChannel("team", []string{"bb"}, 0)
	if err != nil {
		t.Fatalf("CreatePrivateChannel() error = %v", err)
	}
	if !s.Config.InviteOnly {
		t.Error("private channel should be invite-only")
	}

	if !m.HasAccess("team", "aa") {
		t.Error("creator should have access")
	}
	if !m.HasAccess("team", "bb") {
		t.Error("allowlisted peer should have access")
	}
	if m.HasAccess("team", "cc") {
		t.Error("non-allowlisted peer should not have access")
	}
}

func TestCreateDmChannel_SymmetricID(t *testing.T) {
	mA := newTestManager(t, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	mB := newTestManager(t, "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	sA, err := mA.CreateDmChannel("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	if err != nil {
		t.Fatalf("CreateDmChannel() A error = %v", err)
	}
	sB, err := mB.CreateDmChannel("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	if err != nil {
		t.Fatalf("CreateDmChannel() B error = %v", err)
	}

	if sA.Config.ID != sB.Config.ID {
		t.Errorf("dm ids differ: %q vs %q", sA.Config.ID, sB.Config.ID)
	}
	if sA.Config.AccessMode != AccessDM || !sA.Config.InviteOnly {
		t.Error("dm channel should be invite-only access mode dm")
	}
}

func TestHasAccess_PublicChannelAllowsEveryone(t *testing.T) {
	m := newTestManager(t, "aa")
	if _, err := m.CreateChannel("general", 0); err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	if !m.HasAccess("general", "zz") {
		t.Error("public, non-invite-only channel should allow any peer")
	}
}

func TestInviteMember_PublicChannelIsNoop(t *testing.T) {
	m := newTestManager(t, "aa")
	if _, err := m.CreateChannel("general", 0); err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	if err := m.InviteMember("general", "bb"); err != nil {
		t.Fatalf("InviteMember() error = %v", err)
	}

	state, _ := m.Get("general")
	if state.Config.InviteOnly {
		t.Error("inviting a member to a public channel should not flip invite_only")
	}
}

func TestInviteMember_FlipsInviteOnlyOnNonPublicChannel(t *testing.T) {
	m := newTestManager(t, "aa")
	if _, err := m.CreatePrivateChannel("team", nil, 0); err != nil {
		t.Fatalf("CreatePrivateChannel() error = %v", err)
	}

	if err := m.InviteMember("team", "cc"); err != nil {
		t.Fatalf("InviteMember() error = %v", err)
	}

	if !m.HasAccess("team", "cc") {
		t.Error("invited member should now have access")
	}
}

func TestLeaveChannel_RemovesState(t *testing.T) {
	m := newTestManager(t, "aa")
	if _, err := m.CreateChannel("general", 0); err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	if err := m.LeaveChannel("general"); err != nil {
		t.Fatalf("LeaveChannel() error = %v", err)
	}

	if _, ok := m.Get("general"); ok {
		t.Error("channel should no longer be present after LeaveChannel")
	}
}

func TestNewManager_RepopulatesFromStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ordernet.db")

	db1, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	m1, err := NewManager(db1, "aa")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	s1, err := m1.CreateChannel("general", 0)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	db1.Close()

	db2, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open() second error = %v", err)
	}
	defer db2.Close()

	m2, err := NewManager(db2, "aa")
	if err != nil {
		t.Fatalf("NewManager() second error = %v", err)
	}

	s2, ok := m2.Get("general")
	if !ok {
		t.Fatal("channel did not survive restart")
	}
	if s2.GroupKey != s1.GroupKey {
		t.Error("group key changed across restart")
	}
}
