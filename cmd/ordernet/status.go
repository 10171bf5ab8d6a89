package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Womp-Womp/OrderNet/internal/store"
)

func statusCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show this node's durable channel membership",
		Long: `Print every channel recorded in the local database. This
reads durable state only; it does not contact a running node, since no
remote-control plane is in scope for this node.`,
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

			channels, err := db.ListChannels()
			if err != nil {
				return fmt.Errorf("list channels: %w", err)
			}

			if len(channels) == 0 {
				fmt.Println("no channels joined")
				return nil
			}

			for _, c := range channels {
				fmt.Printf("%-24s %-10s threshold=%d created=%s\n",
					c.ID, c.AccessMode, c.VouchThreshold,
					time.UnixMilli(c.CreatedAt).Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "database path (default <home>/.ordernet/ordernet.db)")
	return cmd
}
