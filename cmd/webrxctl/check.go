package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/webrx-map/webrx/internal/app"
	"github.com/webrx-map/webrx/internal/config"
	"github.com/webrx-map/webrx/internal/station"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the configured stations once",
	Long: `Check every station in the station file, or a single one with --id, and
print the result. Checks use the configured timeout and retry policy.

With --save the aggregate is written to the configured store, exactly as a
scheduled refresh would.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().String("id", "", "check only the station with this id")
	checkCmd.Flags().Bool("json", false, "print the aggregate as JSON")
	checkCmd.Flags().Bool("save", false, "persist the aggregate to the configured store")
	checkCmd.Flags().BoolP("verbose", "v", false, "log every attempt")
}

func runCheck(cmd *cobra.Command, _ []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	id, _ := cmd.Flags().GetString("id")
	asJSON, _ := cmd.Flags().GetBool("json")
	save, _ := cmd.Flags().GetBool("save")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logCfg := config.LogConfig{Level: "warn"}
	if verbose {
		logCfg.Level = "debug"
	}
	log := app.NewLogger(os.Stderr, logCfg, "webrxctl", Version)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var source station.Source = station.NewFileSource(cfg.Stations.File)
	if id != "" {
		source, err = singleStation(ctx, source, station.ID(id))
		if err != nil {
			return err
		}
	}

	aggregator := station.NewAggregator(station.AggregatorConfig{
		Source:         source,
		Checker:        app.NewChecker(cfg.Stations, log),
		Logger:         log,
		MaxConcurrency: cfg.Stations.MaxConcurrency,
	})

	agg, err := aggregator.Refresh(ctx)
	if err != nil {
		return err
	}

	if save {
		if err := saveAggregate(ctx, cfg, agg, log); err != nil {
			return err
		}
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(agg)
	}
	return printAggregate(cmd.OutOrStdout(), agg)
}

func singleStation(ctx context.Context, source station.Source, id station.ID) (station.Source, error) {
	all, err := source.Stations(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range all {
		if st.ID == id {
			return station.StaticSource{st}, nil
		}
	}
	return nil, fmt.Errorf("station %q not found", id)
}

func saveAggregate(ctx context.Context, cfg *config.Config, agg *station.Aggregate, log zerolog.Logger) error {
	store, closeStore, err := app.NewStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Save(ctx, agg); err != nil {
		return fmt.Errorf("saving aggregate: %w", err)
	}
	return nil
}

func printAggregate(w io.Writer, agg *station.Aggregate) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tPING\tFREQUENCIES (MHz)")
	for _, r := range agg.Results {
		ping := "-"
		if r.Ping != nil {
			ping = strconv.FormatInt(*r.Ping, 10) + "ms"
		}
		freqs := make([]string, 0, len(r.Frequencies))
		for _, f := range r.Frequencies {
			freqs = append(freqs, strconv.FormatFloat(f, 'f', -1, 64))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Status, ping, strings.Join(freqs, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	s := agg.Summarize()
	_, err := fmt.Fprintf(w, "\n%d online, %d degraded, %d offline (checked %s UTC)\n",
		s.Online, s.Degraded, s.Offline, agg.LastChecked.UTC().Format(station.LastCheckedLayout))
	return err
}
