package commands

import (
	"context"
	"log/slog"
	"time"

	"apti-backend/internal/components/telemetry"
	"apti-backend/internal/coordinator"
	"apti-backend/internal/notify"
	"apti-backend/internal/store"
	"apti-backend/lib/serviceutil"
	libtelemetry "apti-backend/lib/telemetry"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

func logObserver() *store.Observer {
	return store.NewObserver(func(snapshot store.Snapshot) {
		args := []any{
			"maintenance_updated", snapshot.Maintenance.UpdatedAt,
			"energy_updated", snapshot.Energy.UpdatedAt,
			"items", len(snapshot.Maintenance.Items),
			"energy_types", len(snapshot.Energy.Types),
		}
		if amount, ok := snapshot.PayableAmount(); ok {
			args = append(args, "payable", amount)
		}
		if month, usage, ok := snapshot.TotalEnergyUsage(); ok {
			args = append(args, "usage_month", month, "usage", usage)
		}
		slog.Info("records updated", args...)
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Keeps the records up to date until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := readConfig()
		tel := telemetry.SlogAPI{}
		ctx := serviceutil.SignalContext()

		opts, err := cfg.coordinatorOptions(tel)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		opts.Observers = append(opts.Observers, logObserver())
		if cfg.History.Enabled() {
			opts.Observers = append(opts.Observers, openHistory(ctx, cfg, tel).Observer())
		}
		if cfg.Smtp.Enabled() {
			opts.Observers = append(opts.Observers, notify.New(cfg.Smtp, nil, tel).Observer())
		}

		libtelemetry.InstrumentPerfStats(ctx)

		coord, err := coordinator.Initialize(ctx, cfg.credentials(), opts)
		if err != nil {
			serviceutil.Fatal("failed to initialize coordinator", err)
		}
		slog.Info("serving", "available", coord.Available())

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = coord.Shutdown(shutdownCtx)
		if err != nil {
			slog.Warn("failed to shutdown gracefully", "err", err)
		}
	},
}
