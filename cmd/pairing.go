package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

func pairingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pairing",
		Short: "Manage chat-platform sender pairing codes",
	}
	cmd.AddCommand(pairingApproveCmd())
	return cmd
}

func pairingApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <code>",
		Short: "Approve a pending pairing code issued to a DM or group sender",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				fmt.Fprintf(os.Stderr, "load config: %s\n", err)
				os.Exit(1)
			}
			pairs, err := store.NewFilePairingStore(stateDir(cfg))
			if err != nil {
				fmt.Fprintf(os.Stderr, "open pairing store: %s\n", err)
				os.Exit(1)
			}
			senderID, channel, err := pairs.Approve(args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "approve: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("approved %s on %s\n", senderID, channel)
		},
	}
}
