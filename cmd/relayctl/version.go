package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=... -X main.revision=..."
var (
	version  = "dev"
	revision = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the relayctl version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "relayctl %s (%s)\n", version, revision)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
