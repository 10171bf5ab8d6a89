// Package node wires identity, storage, channel state, and the four peer
// protocols into a single running OrderNet node, and owns the
// orchestration between them: most notably, reacting to a channel's vouch
// threshold being met by pushing that channel's group key to the newly
// admitted member.
package node

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/Womp-Womp/OrderNet/internal/channel"
	"github.com/Womp-Womp/OrderNet/internal/chatproto"
	"github.com/Womp-Womp/OrderNet/internal/events"
	"github.com/Womp-Womp/OrderNet/internal/identity"
	"github.com/Womp-Womp/OrderNet/internal/invite"
	"github.com/Womp-Womp/OrderNet/internal/keyex"
	"github.com/Womp-Womp/OrderNet/internal/logging"
	"github.com/Womp-Womp/OrderNet/internal/presence"
	"github.com/Womp-Womp/OrderNet/internal/recovery"
	"github.com/Womp-Womp/OrderNet/internal/store"
	"github.com/Womp-Womp/OrderNet/internal/transport"
	"github.com/Womp-Womp/OrderNet/internal/trust"
	"github.com/Womp-Womp/OrderNet/internal/vouchproto"
)

// Node is a single running OrderNet instance: one identity, one database,
// and every protocol wired against a shared transport.
type Node struct {
	Identity *identity.Identity
	Channels *channel.Manager
	Trust    *trust.Engine
	Bus      *events.Bus

	Chat    *chatproto.Protocol
	Presence *presence.Protocol
	Vouch   *vouchproto.Protocol
	KeyEx   *keyex.Protocol

	db     *store.Store
	logger *slog.Logger

	orchestratorStop chan struct{}
}

// Config bundles Node's start-up dependencies.
type Config struct {
	DBPath          string
	Nickname        string
	Passphrase      string
	PubSub          transport.PubSub
	Unicast         transport.Unicast
	Logger          *slog.Logger
}

// New opens the database, loads or creates the identity, rehydrates
// channel state, and wires the four peer protocols against the supplied
// transport. Callers must call Start to begin the presence announce loop
// and the join-threshold orchestrator.
func New(cfg Config) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	id, err := identity.Load(db, cfg.Passphrase, cfg.Nickname)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load identity: %w", err)
	}

	channels, err := channel.NewManager(db, id.PublicKeyHex())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load channels: %w", err)
	}

	trustEngine := trust.NewEngine(db)
	bus := events.NewBus(cfg.Logger)

	n := &Node{
		Identity:         id,
		Channels:         channels,
		Trust:            trustEngine,
		Bus:              bus,
		db:               db,
		logger:           cfg.Logger,
		orchestratorStop: make(chan struct{}),
	}

	presenceProto, err := presence.New(id, db, cfg.PubSub, bus, cfg.Logger, n.channelIDs)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("start presence: %w", err)
	}
	n.Presence = presenceProto

	n.Chat = chatproto.New(id, channels, db, cfg.PubSub, bus, cfg.Logger)
	n.Vouch = vouchproto.New(id, trustEngine, channels, presenceProto, cfg.Unicast, bus, cfg.Logger)
	n.KeyEx = keyex.New(id, channels, presenceProto, cfg.Unicast, bus, cfg.Logger)

	return n, nil
}

func (n *Node) channelIDs() []string {
	// Every currently-joined channel is reported in presence announcements
	// so peers know which topics to expect this node on.
	ids := make([]string, 0)
	for _, row := range n.listChannelRows() {
		ids = append(ids, row)
	}
	return ids
}

func (n *Node) listChannelRows() []string {
	rows, err := n.db.ListChannels()
	if err != nil {
		return nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

// Start begins the presence announce loop and the vouch-threshold
// orchestrator.
func (n *Node) Start(ctx context.Context) {
	n.Presence.Start()
	go n.runOrchestrator()
}

// Stop halts the presence loop and the orchestrator, then closes the
// database. Calling Stop more than once is safe.
func (n *Node) Stop() error {
	n.Presence.Stop()
	select {
	case <-n.orchestratorStop:
	default:
		close(n.orchestratorStop)
	}
	return n.db.Close()
}

// runOrchestrator reacts to channel-joined events (a vouchee's threshold
// was met) by pushing that channel's group key to them.
func (n *Node) runOrchestrator() {
	defer recovery.RecoverWithLog(n.logger, "node-orchestrator")

	sub := n.Bus.Subscribe()
	for {
		select {
		case <-n.orchestratorStop:
			return
		case e := <-sub:
			if e.Kind != events.KindChannelJoin {
				continue
			}
			var voucheePub [32]byte
			decoded, err := hex.DecodeString(e.ChannelJoined.VoucheeHex)
			if err != nil || len(decoded) != 32 {
				continue
			}
			copy(voucheePub[:], decoded)

			if err := n.KeyEx.Send(context.Background(), voucheePub, e.ChannelJoined.ChannelID); err != nil {
				n.logger.Warn("send key exchange after vouch threshold met",
					logging.KeyChannelID, e.ChannelJoined.ChannelID, logging.KeyVouchee, e.ChannelJoined.VoucheeHex, logging.KeyError, err)
			}
		}
	}
}

// CreateChannel creates a new public channel and joins its chat topic.
func (n *Node) CreateChannel(ctx context.Context, name string, threshold int) (*channel.State, error) {
	state, err := n.Channels.CreateChannel(name, threshold)
	if err != nil {
		return nil, err
	}
	if err := n.Chat.Join(ctx, state.Config.ID); err != nil {
		return nil, err
	}
	return state, nil
}

// CreateInvite returns a portable invite code for channelID.
func (n *Node) CreateInvite(channelID string) (string, error) {
	state, ok := n.Channels.Get(channelID)
	if !ok {
		return "", fmt.Errorf("node: unknown channel %q", channelID)
	}
	return invite.Generate(state)
}

// JoinViaInvite consumes an invite code, installs the channel locally,
// and subscribes to its chat topic.
func (n *Node) JoinViaInvite(ctx context.Context, code string) (*channel.State, error) {
	state, err := invite.Consume(code, n.Channels)
	if err != nil {
		return nil, err
	}
	if err := n.Chat.Join(ctx, state.Config.ID); err != nil {
		return nil, err
	}
	return state, nil
}

// RequestToJoin sends a join request for channelID to recipientPub
// (typically the channel's creator).
func (n *Node) RequestToJoin(ctx context.Context, recipientPub [32]byte, channelID string) error {
	return n.Vouch.SendJoinRequest(ctx, recipientPub, channelID)
}

// VouchFor sends a vouch for voucheePub on channelID to that channel's
// creator.
func (n *Node) VouchFor(ctx context.Context, voucheePub [32]byte, channelID string) error {
	return n.Vouch.SendVouch(ctx, voucheePub, channelID)
}

// Send publishes a chat message to channelID.
func (n *Node) Send(ctx context.Context, channelID, content string) error {
	return n.Chat.Send(ctx, channelID, content)
}

// GetOnlinePeers returns the peers currently believed online.
func (n *Node) GetOnlinePeers() []presence.Entry {
	return n.Presence.GetOnlinePeers()
}

// GetChannelHistory returns channelID's stored messages, oldest first,
// decrypted under its current group key.
func (n *Node) GetChannelHistory(channelID string) ([]events.Message, error) {
	state, ok := n.Channels.Get(channelID)
	if !ok {
		return nil, fmt.Errorf("node: unknown channel %q", channelID)
	}

	rows, err := n.db.ListMessages(channelID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]events.Message, 0, len(rows))
	for _, r := range rows {
		msg, ok := decryptHistoryRow(state, r)
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}
