package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Womp-Womp/OrderNet/internal/store"
)

func peersCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "peers",
		Short: "Show every peer this node has ever observed",
		Long: `Print the durable peer table: every remote public key this
node has seen a presence announcement from, and when it was last seen.
This is historical record, not a live online check.`,
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

			peers, err := db.ListPeers()
			if err != nil {
				return fmt.Errorf("list peers: %w", err)
			}

			if len(peers) == 0 {
				fmt.Println("no peers observed")
				return nil
			}

			for _, p := range peers {
				fmt.Printf("%-16s %-20s last_seen=%s\n",
					p.PublicKeyHex[:16], p.Nickname,
					time.UnixMilli(p.LastSeen).Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default <home>/.ordernet/ordernet.db)")
	return cmd
}
