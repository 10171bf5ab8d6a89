package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Womp-Womp/OrderNet/internal/config"
	"github.com/Womp-Womp/OrderNet/internal/identity"
	"github.com/Womp-Womp/OrderNet/internal/store"
)

func identityCmd() *cobra.Command {
	var (
		dbPath string
		nick   string
	)

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Show this node's identity, generating one if none exists",
		Long: `Load (or create, if this is the first run) the node's single
long-term Ed25519 identity and print its public fingerprint and nickname.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := dbPath
			if path == "" {
				path = defaultDBPath()
			}

			db, err := store.Open(path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer db.Close()

			cfg := config.Default()
			id, err := identity.Load(db, cfg.ResolvePassphrase(), nick)
			if err != nil {
				return fmt.Errorf("load identity: %w", err)
			}

			fmt.Printf("fingerprint: %s\n", id.Fingerprint())
			fmt.Printf("public key:  %s\n", id.PublicKeyHex())
			fmt.Printf("nickname:    %s\n", id.Nickname())
			fmt.Printf("database:    %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default <home>/.ordernet/ordernet.db)")
	cmd.Flags().StringVar(&nick, "nick", "", "initial nickname, if no stored identity exists")

	return cmd
}
