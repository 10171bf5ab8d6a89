package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/Womp-Womp/OrderNet/internal/logging"
	"github.com/Womp-Womp/OrderNet/internal/node"
	"github.com/Womp-Womp/OrderNet/internal/transport"
)

// demoSwarm is a handful of additional OrderNet nodes sharing a Network
// with the node started by `run`, used to exercise the full chat/presence/
// vouch/key-exchange flow without a real transport.
type demoSwarm struct {
	nodes     []*node.Node
	channelID string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newDemoSwarm creates count simulated peer nodes attached to net. Nodes
// subscribe to the presence topic as soon as they are constructed (well
// before start is called), so they must exist before the host's own first
// presence announcement for that announcement to reach them.
func newDemoSwarm(net *transport.Network, count int) (*demoSwarm, error) {
	s := &demoSwarm{}
	quiet := logging.NopLogger()

	for i := 0; i < count; i++ {
		dir, err := os.MkdirTemp("", "ordernet-demo-peer-*")
		if err != nil {
			return nil, fmt.Errorf("demo peer temp dir: %w", err)
		}

		peerClient := net.NewClient(transport.PeerID(fmt.Sprintf("demo-peer-%d", i)))
		n, err := node.New(node.Config{
			DBPath:   dir + "/peer.db",
			Nickname: fmt.Sprintf("demo-peer-%d", i),
			PubSub:   peerClient,
			Unicast:  peerClient,
			Logger:   quiet,
		})
		if err != nil {
			return nil, fmt.Errorf("create demo peer %d: %w", i, err)
		}
		s.nodes = append(s.nodes, n)
	}
	return s, nil
}

// start announces every demo peer, admits the first one to host's default
// channel by invite (it becomes the in-channel voucher for the rest, since
// a channel's creator can never resolve its own transport address through
// presence — a node never tracks itself as a peer), admits the remaining
// peers by vouch, and starts a goroutine that sends occasional chat
// messages from random members.
func (s *demoSwarm) start(ctx context.Context, host *node.Node, logger *slog.Logger) error {
	demoCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, n := range s.nodes {
		n.Start(demoCtx)
	}

	// Let the host's and every demo peer's first announce land before
	// routing invites and vouches through presence-resolved addresses.
	time.Sleep(50 * time.Millisecond)

	state, err := host.CreateChannel(ctx, "general", 1)
	if err != nil {
		return fmt.Errorf("create demo channel: %w", err)
	}
	s.channelID = state.Config.ID

	if len(s.nodes) == 0 {
		return nil
	}

	voucher := s.nodes[0]
	code, err := host.CreateInvite(s.channelID)
	if err != nil {
		return fmt.Errorf("create demo invite: %w", err)
	}
	if _, err := voucher.JoinViaInvite(ctx, code); err != nil {
		return fmt.Errorf("demo voucher join via invite: %w", err)
	}

	hostPub := host.Identity.PublicKey()
	for _, n := range s.nodes[1:] {
		if err := n.RequestToJoin(ctx, hostPub, s.channelID); err != nil {
			logger.Warn("demo peer join request failed", logging.KeyNickname, n.Identity.Nickname(), logging.KeyError, err)
			continue
		}
		if err := voucher.VouchFor(ctx, n.Identity.PublicKey(), s.channelID); err != nil {
			logger.Warn("demo voucher vouch failed", logging.KeyNickname, n.Identity.Nickname(), logging.KeyError, err)
		}
	}

	// Key exchange is asynchronous (delivered via the host's orchestrator
	// goroutine reacting to the threshold-met event); give it a moment
	// before peers start sending.
	time.Sleep(50 * time.Millisecond)

	s.wg.Add(1)
	go s.chatter(demoCtx, logger)

	return nil
}

var demoLines = []string{
	"hey, anyone around?",
	"testing the vouch flow",
	"this message should show up in everyone's history",
	"group key exchange seems to be working",
	"o/",
}

func (s *demoSwarm) chatter(ctx context.Context, logger *slog.Logger) {
	defer s.wg.Done()

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if len(s.nodes) == 0 {
				continue
			}
			n := s.nodes[rand.Intn(len(s.nodes))]
			line := demoLines[rand.Intn(len(demoLines))]
			if err := n.Send(ctx, s.channelID, line); err != nil {
				logger.Debug("demo chatter send failed", logging.KeyNickname, n.Identity.Nickname(), logging.KeyError, err)
			}
		}
	}
}

// Stop halts the chatter goroutine and every demo peer node.
func (s *demoSwarm) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	for _, n := range s.nodes {
		_ = n.Stop()
	}
}
