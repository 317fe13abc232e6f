package main

import (
	"context"
	"log/slog"
	"os"

	"apti-backend/cmd/apti/commands"
	"apti-backend/lib/telemetry"
)

func main() {
	ctx := context.Background()
	tel, err := telemetry.SetupFromEnv(ctx, "apti")
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to setup telemetry", "err", err)
	}
	code := commands.ExecuteContext(ctx)
	if err == nil {
		tel.Shutdown(ctx)
	}
	os.Exit(code)
}
