// Package cli implements the peerscope command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "peerscope",
	Short: "peerscope - LAN peer status overlay",
	Long: `peerscope runs a small peer-to-peer node on the local network.
Nodes find each other over multicast beacons, gossip status requests and
responses over QUIC, and expose what they learn through a console and an
HTTP admin surface.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
