package node

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Womp-Womp/OrderNet/internal/transport"
)

// newWiredNode creates a Node whose transport client is keyed to its own
// identity. A node's public key is only known once its identity has been
// loaded, so a throwaway probe instance opens the identity first to learn
// the stable key the Network client should be registered under.
func newWiredNode(t *testing.T, net *transport.Network, nick string) *Node {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	probe, err := New(Config{DBPath: dbPath, Nickname: nick, PubSub: discardPubSub{}, Unicast: discardUnicast{}})
	if err != nil {
		t.Fatalf("probe New() error = %v", err)
	}
	pub := probe.Identity.PublicKeyHex()
	probe.Stop()

	client := net.NewClient(transport.PeerID(pub))

	n, err := New(Config{DBPath: dbPath, Nickname: nick, PubSub: client, Unicast: client})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return n
}

type discardPubSub struct{}

func (discardPubSub) Publish(ctx context.Context, topic string, payload []byte) error { return nil }
func (discardPubSub) Subscribe(ctx context.Context, topic string, handler func(peer transport.PeerID, payload []byte)) (transport.Subscription, error) {
	return discardSub{}, nil
}

type discardSub struct{}

func (discardSub) Cancel() error { return nil }

type discardUnicast struct{}

func (discardUnicast) RegisterHandler(protocolID string, handler func(ctx context.Context, peer transport.PeerID, payload []byte) ([]byte, error)) {
}
func (discardUnicast) Send(ctx context.Context, peer transport.PeerID, protocolID string, payload []byte) ([]byte, error) {
	return nil, nil
}

func TestNode_InviteJoinSendHistory(t *testing.T) {
	net := transport.NewNetwork()

	alice := newWiredNode(t, net, "alice")
	bob := newWiredNode(t, net, "bob")
	defer alice.Stop()
	defer bob.Stop()

	ctx := context.Background()

	state, err := alice.CreateChannel(ctx, "general", 1)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	code, err := alice.CreateInvite(state.Config.ID)
	if err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}

	if _, err := bob.JoinViaInvite(ctx, code); err != nil {
		t.Fatalf("JoinViaInvite() error = %v", err)
	}

	if err := alice.Send(ctx, state.Config.ID, "hello bob"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	history, err := bob.GetChannelHistory(state.Config.ID)
	if err != nil {
		t.Fatalf("GetChannelHistory() error = %v", err)
	}
	if len(history) != 1 || history[0].Content != "hello bob" {
		t.Errorf("history = %+v, want one message %q", history, "hello bob")
	}
}

func TestNode_VouchThresholdTriggersAutomaticKeyExchange(t *testing.T) {
	net := transport.NewNetwork()

	creator := newWiredNode(t, net, "creator")
	voucher := newWiredNode(t, net, "voucher")
	vouchee := newWiredNode(t, net, "vouchee")
	defer creator.Stop()
	defer voucher.Stop()
	defer vouchee.Stop()

	ctx := context.Background()

	state, err := creator.CreateChannel(ctx, "trusted", 1)
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}

	// The voucher must already locally recognize the channel (e.g. via a
	// prior invite) in order to route its vouch to the creator.
	code, err := creator.CreateInvite(state.Config.ID)
	if err != nil {
		t.Fatalf("CreateInvite() error = %v", err)
	}
	if _, err := voucher.JoinViaInvite(ctx, code); err != nil {
		t.Fatalf("voucher JoinViaInvite() error = %v", err)
	}

	creator.Presence.Start()
	voucher.Presence.Start()
	vouchee.Presence.Start()
	defer creator.Presence.Stop()
	defer voucher.Presence.Stop()
	defer vouchee.Presence.Stop()

	go creator.runOrchestrator()
	defer close(creator.orchestratorStop)

	time.Sleep(10 * time.Millisecond) // let the initial presence announce land

	if err := voucher.VouchFor(ctx, vouchee.Identity.PublicKey(), state.Config.ID); err != nil {
		t.Fatalf("VouchFor() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := vouchee.Channels.Get(state.Config.ID); ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("vouchee never received the channel's group key after the vouch threshold was met")
}
