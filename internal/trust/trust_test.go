package trust

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/Womp-Womp/OrderNet/internal/crypto"
	"github.com/Womp-Womp/OrderNet/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustKeypair(t *testing.T) crypto.IdentityKeypair {
	t.Helper()
	kp, err := crypto.GenerateIdentityKeypair()
	if err != nil {
		t.Fatalf("GenerateIdentityKeypair() error = %v", err)
	}
	return kp
}

func TestEngine_CreateAndVerifyVouch(t *testing.T) {
	db := openTestStore(t)
	e := NewEngine(db)

	voucher := mustKeypair(t)
	vouchee := mustKeypair(t)

	if err := e.CreateJoinRequest(vouchee.PublicKey, "chan-1"); err != nil {
		t.Fatalf("CreateJoinRequest() error = %v", err)
	}

	v, err := e.CreateVouch(voucher.Seed, voucher.PublicKey, vouchee.PublicKey, "chan-1")
	if err != nil {
		t.Fatalf("CreateVouch() error = %v", err)
	}
	if !e.VerifyVouch(v) {
		t.Error("VerifyVouch() = false for a freshly created vouch")
	}

	jr, err := e.GetJoinRequest(hex.EncodeToString(vouchee.PublicKey[:]), "chan-1")
	if err != nil {
		t.Fatalf("GetJoinRequest() error = %v", err)
	}
	if jr == nil || jr.VouchesReceived != 1 {
		t.Errorf("VouchesReceived = %+v, want 1", jr)
	}
}

func TestEngine_VerifyVouch_RejectsTamperedSignature(t *testing.T) {
	db := openTestStore(t)
	e := NewEngine(db)

	voucher := mustKeypair(t)
	vouchee := mustKeypair(t)

	v, err := e.CreateVouch(voucher.Seed, voucher.PublicKey, vouchee.PublicKey, "chan-1")
	if err != nil {
		t.Fatalf("CreateVouch() error = %v", err)
	}
	v.ChannelID = "chan-2"
	if e.VerifyVouch(v) {
		t.Error("VerifyVouch() = true after mutating the signed channel id")
	}
}

func TestEngine_DuplicateVouchIsNoOp(t *testing.T) {
	db := openTestStore(t)
	e := NewEngine(db)

	voucher := mustKeypair(t)
	vouchee := mustKeypair(t)

	if _, err := e.CreateVouch(voucher.Seed, voucher.PublicKey, vouchee.PublicKey, "chan-1"); err != nil {
		t.Fatalf("CreateVouch() error = %v", err)
	}
	if _, err := e.CreateVouch(voucher.Seed, voucher.PublicKey, vouchee.PublicKey, "chan-1"); err != nil {
		t.Fatalf("second CreateVouch() error = %v", err)
	}

	count, err := e.VouchCount(hex.EncodeToString(vouchee.PublicKey[:]), "chan-1")
	if err != nil {
		t.Fatalf("VouchCount() error = %v", err)
	}
	if count != 1 {
		t.Errorf("VouchCount() = %d, want 1 (double vouch by the same voucher should not double-count)", count)
	}
}

func TestEngine_TrustGraph(t *testing.T) {
	db := openTestStore(t)
	e := NewEngine(db)

	v1 := mustKeypair(t)
	v2 := mustKeypair(t)
	vouchee := mustKeypair(t)

	if _, err := e.CreateVouch(v1.Seed, v1.PublicKey, vouchee.PublicKey, "chan-1"); err != nil {
		t.Fatalf("CreateVouch() error = %v", err)
	}
	if _, err := e.CreateVouch(v2.Seed, v2.PublicKey, vouchee.PublicKey, "chan-1"); err != nil {
		t.Fatalf("CreateVouch() error = %v", err)
	}

	edges, err := e.GetTrustGraph("chan-1")
	if err != nil {
		t.Fatalf("GetTrustGraph() error = %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("len(edges) = %d, want 2", len(edges))
	}
}

func TestEngine_ApproveRequest(t *testing.T) {
	db := openTestStore(t)
	e := NewEngine(db)

	requester := mustKeypair(t)
	if err := e.CreateJoinRequest(requester.PublicKey, "chan-1"); err != nil {
		t.Fatalf("CreateJoinRequest() error = %v", err)
	}
	if err := e.ApproveRequest(hex.EncodeToString(requester.PublicKey[:]), "chan-1"); err != nil {
		t.Fatalf("ApproveRequest() error = %v", err)
	}

	jr, err := e.GetJoinRequest(hex.EncodeToString(requester.PublicKey[:]), "chan-1")
	if err != nil {
		t.Fatalf("GetJoinRequest() error = %v", err)
	}
	if jr == nil || jr.Status != store.JoinRequestApproved {
		t.Errorf("Status = %+v, want %q", jr, store.JoinRequestApproved)
	}
}

func TestEngine_GetJoinRequest_Unknown(t *testing.T) {
	db := openTestStore(t)
	e := NewEngine(db)

	jr, err := e.GetJoinRequest(hex.EncodeToString(make([]byte, 32)), "chan-1")
	if err != nil {
		t.Fatalf("GetJoinRequest() error = %v", err)
	}
	if jr != nil {
		t.Errorf("GetJoinRequest() = %+v, want nil for an unknown request", jr)
	}
}

