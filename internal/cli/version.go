package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by the build.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the margind version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("margind %s\n", Version)
	},
}
