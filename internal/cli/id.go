package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"peerscope/internal/config"
	"peerscope/internal/identity"
)

func init() {
	idCmd.Flags().StringVar(&idConfigPath, "config", "", "Path to a TOML config file")
	rootCmd.AddCommand(idCmd)
}

var idConfigPath string

var idCmd = &cobra.Command{
	Use:   "id",
	Short: "Print this node's peer id",
	Long:  `Print the peer id derived from the local keypair, generating the keypair on first use.`,
	RunE:  runID,
}

func runID(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(idConfigPath)
	if err != nil {
		return err
	}
	ident, err := identity.Load(cfg.Node.Home)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), ident.PeerID)
	return nil
}
