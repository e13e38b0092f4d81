package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/webrx-map/webrx/internal/config"
	"github.com/webrx-map/webrx/internal/station"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the station file",
	Long: `Validate the configuration and every entry of the station file without
contacting any station.

Exit codes:
  0 - configuration and station file are valid
  1 - something is invalid (details printed to stderr)`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	stations, err := station.NewFileSource(cfg.Stations.File).Stations(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Config is valid!")
	if cfg.File != "" {
		fmt.Fprintf(out, "  Config file:   %s\n", cfg.File)
	}
	fmt.Fprintf(out, "  Station file:  %s (%d stations)\n", cfg.Stations.File, len(stations))
	fmt.Fprintf(out, "  Refresh:       every %s, cached for %s\n", cfg.Stations.RefreshInterval, cfg.Stations.TTL)
	fmt.Fprintf(out, "  Checks:        %d attempts, %s timeout, %s apart\n", cfg.Stations.MaxAttempts, cfg.Stations.Timeout, cfg.Stations.RetryDelay)
	fmt.Fprintf(out, "  Store:         %s\n", cfg.Store.Driver)
	fmt.Fprintf(out, "  Tiles:         %s (%d entries, %s)\n", cfg.Tiles.URLPattern, cfg.Tiles.MaxEntries, cfg.Tiles.TTL)
	return nil
}
