package commands

import (
	"context"
	"log/slog"
	"time"

	"apti-backend/internal/components/chrono"
	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/coordinator"
	"apti-backend/internal/history"
	"apti-backend/lib/serviceutil"

	"github.com/spf13/cobra"
)

var fetchRecord *bool

func init() {
	fetchRecord = fetchCmd.Flags().Bool("record", false, "Also write the fetched records to the configured history database.")
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [--record]",
	Short: "Fetches maintenance fees and energy usage once and prints them.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		tel := telemetry.SlogAPI{}

		opts, err := cfg.coordinatorOptions(tel)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		// the timers are never fired, fetch is a single pass
		opts.Scheduler = &chrono.ManualScheduler{}

		if *fetchRecord {
			h := openHistory(cmd.Context(), cfg, tel)
			opts.Observers = append(opts.Observers, h.Observer())
		}

		t1 := time.Now()
		coord, err := coordinator.Initialize(cmd.Context(), cfg.credentials(), opts)
		if err != nil {
			serviceutil.Fatal("failed to fetch", err)
		}
		slog.Info("fetch time", "seconds", time.Since(t1).Seconds())

		renderSnapshot(coord.Snapshot())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = coord.Shutdown(ctx)
		if err != nil {
			slog.Warn("failed to shutdown", "err", err)
		}
	},
}

func openHistory(ctx context.Context, cfg Config, tel telemetry.API) *history.History {
	if !cfg.History.Enabled() {
		serviceutil.Fatal("failed to open history", errHistoryNotConfigured)
	}
	database, err := cfg.History.OpenDB()
	if err != nil {
		serviceutil.Fatal("failed to open history", err)
	}
	h, err := history.New(ctx, database, tel)
	if err != nil {
		serviceutil.Fatal("failed to open history", err)
	}
	return h
}
