package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"studentscorner-backend/cmd/creditregister-cli/commands"
	"studentscorner-backend/internal/components/telemetry"
)

func main() {
	ctx := context.Background()

	otel, err := telemetry.SetupFromEnv(ctx, "creditregister-cli")
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err.Error())
	}

	err = commands.ExecuteContext(ctx)

	shutdownErr := otel.Shutdown(context.Background())
	if shutdownErr != nil {
		slog.Warn("failed to shutdown telemetry", "err", shutdownErr.Error())
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
