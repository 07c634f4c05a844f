// Package cmd wires the cobra CLI: a single "gateway" process that loads
// config, builds every transport/runtime component, and serves the
// control-plane WebSocket until signalled to stop — plus a handful of
// operator subcommands for chat-pairing approval. Grounded on the teacher's
// cmd/root.go for the persistent-flags/subcommand-registration shape; the
// teacher's much larger subcommand set (onboard, doctor, models, skills,
// migrate, managed-mode agent/config CRUD) wired an in-process agent/tools/
// providers/subagents/MCP/Postgres stack that SPEC_FULL.md's external
// agentrt worker replaces outright, so those subcommands have no equivalent
// here (see DESIGN.md).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// Version is set at build time via -ldflags "-X .../cmd.Version=v1.0.0".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "goclaw",
	Short: "GoClaw Gateway — personal-assistant message relay",
	Long:  "GoClaw Gateway relays WhatsApp/Telegram/Discord/WebChat messages to an external agent-runtime worker, with sessions, activation directives, a queue/interrupt scheduler, heartbeats, cron, and a paired-node bridge, over a WebSocket control plane.",
	Run: func(cmd *cobra.Command, args []string) {
		runGateway()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.json or $GOCLAW_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(pairingCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("goclaw %s (protocol %d)\n", Version, protocol.ProtocolVersion)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("GOCLAW_CONFIG"); v != "" {
		return v
	}
	return "config.json"
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
