package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Womp-Womp/OrderNet/internal/config"
	"github.com/Womp-Womp/OrderNet/internal/logging"
	"github.com/Womp-Womp/OrderNet/internal/node"
	"github.com/Womp-Womp/OrderNet/internal/transport"
)

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ordernet.db"
	}
	return filepath.Join(home, ".ordernet", "ordernet.db")
}

func runCmd() *cobra.Command {
	var (
		configPath string
		nick       string
		port       int
		dbPath     string
		bootstrap  []string
		mdns       bool
		demoPeers  int
		promptPass bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an OrderNet node",
		Long: `Start an OrderNet node: load or create its identity, rehydrate
every channel it belongs to, and begin announcing presence and accepting
chat, vouch, and key-exchange traffic.

The real peer-to-peer transport (discovery, dialing, and wire framing) is
outside this repository's scope; --port, --bootstrap, and --mdns are
accepted for interface compatibility with spec.md's CLI surface but do not
open a socket. Use --demo-peers to run this node alongside N simulated
in-process peers, which exercises the full chat/presence/vouch/key-exchange
flow without a real network.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}

			if nick != "" {
				cfg.Node.Nickname = nick
			}
			if cmd.Flags().Changed("port") {
				cfg.Node.Port = port
			}
			if dbPath != "" {
				cfg.Node.DBPath = dbPath
			}
			if len(bootstrap) > 0 {
				cfg.Node.Bootstrap = bootstrap
			}
			if mdns {
				cfg.Node.MDNS = true
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if cfg.Node.DBPath == "" {
				cfg.Node.DBPath = defaultDBPath()
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Node.DBPath), 0o700); err != nil {
				return fmt.Errorf("create database directory: %w", err)
			}

			logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

			passphrase := cfg.ResolvePassphrase()
			if passphrase == "" && promptPass {
				entered, err := readPassphrase()
				if err != nil {
					return fmt.Errorf("read passphrase: %w", err)
				}
				passphrase = entered
			}

			net := transport.NewNetwork()
			selfPeerID := transport.PeerID(fmt.Sprintf("self-%d", time.Now().UnixNano()))
			client := net.NewClient(selfPeerID)

			n, err := node.New(node.Config{
				DBPath:     cfg.Node.DBPath,
				Nickname:   cfg.Node.Nickname,
				Passphrase: passphrase,
				PubSub:     client,
				Unicast:    client,
				Logger:     logger,
			})
			if err != nil {
				return fmt.Errorf("start node: %w", err)
			}

			fmt.Printf("OrderNet node starting\n")
			fmt.Printf("  fingerprint: %s\n", n.Identity.Fingerprint())
			fmt.Printf("  nickname:    %s\n", n.Identity.Nickname())
			fmt.Printf("  database:    %s\n", cfg.Node.DBPath)
			if cfg.Node.Port != 0 || len(cfg.Node.Bootstrap) > 0 || cfg.Node.MDNS {
				logger.Warn("transport flags accepted but have no effect: the peer-to-peer transport is out of scope for this build",
					"port", cfg.Node.Port, "bootstrap", strings.Join(cfg.Node.Bootstrap, ","), "mdns", cfg.Node.MDNS)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Demo peer nodes must exist (and so be subscribed to the
			// presence topic) before the host's first announce, or they
			// miss it and have to wait a full AnnounceInterval to learn
			// the host's transport address.
			var demo *demoSwarm
			if demoPeers > 0 {
				demo, err = newDemoSwarm(net, demoPeers)
				if err != nil {
					_ = n.Stop()
					return fmt.Errorf("create demo peers: %w", err)
				}
			}

			n.Start(ctx)

			if demo != nil {
				if err := demo.start(ctx, n, logger); err != nil {
					_ = n.Stop()
					return fmt.Errorf("start demo peers: %w", err)
				}
				fmt.Printf("  demo peers:  %d (channel %q)\n", demoPeers, demo.channelID)
			}

			fmt.Println("running; press Ctrl+C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			fmt.Println("\nshutting down...")
			if demo != nil {
				demo.Stop()
			}
			if err := n.Stop(); err != nil {
				return fmt.Errorf("stop node: %w", err)
			}
			fmt.Println("stopped.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&nick, "nick", "", "initial nickname, if no stored identity exists")
	cmd.Flags().IntVar(&port, "port", 0, "local TCP listen port (0 = ephemeral; accepted, not wired)")
	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default <home>/.ordernet/ordernet.db)")
	cmd.Flags().StringArrayVar(&bootstrap, "bootstrap", nil, "bootstrap peer multiaddr (repeatable; accepted, not wired)")
	cmd.Flags().BoolVar(&mdns, "mdns", false, "enable LAN mDNS discovery (accepted, not wired)")
	cmd.Flags().IntVar(&demoPeers, "demo-peers", 0, "run N simulated in-process peers alongside this node")
	cmd.Flags().BoolVar(&promptPass, "prompt-passphrase", false, "prompt for the identity passphrase if none is configured")

	return cmd
}

// readPassphrase prompts for a passphrase on the controlling terminal
// without echoing it back.
func readPassphrase() (string, error) {
	fmt.Fprint(os.Stderr, "identity passphrase: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
