package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "ordernet",
		Short:   "OrderNet - a local-first, peer-to-peer chat node",
		Version: Version,
		Long: `OrderNet is a local-first peer-to-peer chat node.

Every node holds its own Ed25519 identity, local SQLite history, and a set
of channels it has joined. Membership spreads by vouching rather than by a
central server: existing members vouch for a prospective member until a
channel's vouch threshold is met, at which point the channel's group key is
pushed to them automatically.`,
	}

	root.AddGroup(&cobra.Group{ID: "start", Title: "Getting Started:"})
	root.AddGroup(&cobra.Group{ID: "status", Title: "Node Status:"})

	run := runCmd()
	run.GroupID = "start"
	root.AddCommand(run)

	ident := identityCmd()
	ident.GroupID = "start"
	root.AddCommand(ident)

	status := statusCmd()
	status.GroupID = "status"
	root.AddCommand(status)

	peers := peersCmd()
	peers.GroupID = "status"
	root.AddCommand(peers)

	return root
}
