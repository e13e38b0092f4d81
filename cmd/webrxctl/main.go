// Package main is the entry point for the webrxctl operator CLI.
//
// Usage:
//
//	webrxctl check -c config.yaml        # Check every configured station once
//	webrxctl check --id 3                # Check a single station
//	webrxctl validate -c config.yaml     # Validate configuration and station file
//	webrxctl version                     # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "webrxctl",
	Short: "Operator tooling for the WebRX station map",
	Long: `webrxctl checks WebRX receivers and validates configuration without
running the API server.

Configuration is read the same way as the server: defaults, then the file
given by --config (or WEBRX_CONFIG, or ./config.yaml), then the environment.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "webrxctl %s (built %s)\n", Version, BuildTime)
	},
}
