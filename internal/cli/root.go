// Package cli wires the margind command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

// rootCmd is the margind entry point.
var rootCmd = &cobra.Command{
	Use:   "margind",
	Short: "Margin trading ledger daemon",
	Long: `margind runs a collateralised margin trading ledger: a trustline
ledger extended with signed debt, periodic funding transfers between longs
and shorts, and automated liquidation of undercollateralised accounts.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "margind.toml", "path to the configuration file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the command tree.
func Execute() error {
	return rootCmd.Execute()
}
