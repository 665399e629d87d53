package main

import (
	"context"
	"flag"
	"log/slog"
	"studentscorner-backend/internal/batch"
	"studentscorner-backend/internal/components/serviceutil"
	"studentscorner-backend/internal/components/telemetry"
	"studentscorner-backend/internal/scrapers/studentscorner"
	"studentscorner-backend/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the config file.")
	flag.Parse()

	telemetry.InitSlog(*verbose)

	err := godotenv.Load()
	if err != nil {
		slog.Debug("no .env file loaded", "err", err.Error())
	}

	ctx := serviceutil.SignalContext()

	otel, err := telemetry.SetupFromEnv(ctx, "creditregisterd")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	defer func() {
		err := otel.Shutdown(context.Background())
		if err != nil {
			slog.Warn("shutdown telemetry", "err", err.Error())
		}
	}()
	telemetry.InstrumentPerfStats(ctx)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	tel := telemetry.SlogAPI{}
	portal := studentscorner.NewPortal(cfg.PortalOptions(), tel)
	coordinator := batch.NewCoordinator(portal, cfg.BatchOptions(), tel)
	svc := service.NewService(coordinator, service.Options{
		AllowedOrigins: cfg.AllowedOrigins,
	}, tel)

	err = serviceutil.StartHttpServer(ctx, cfg.Host, cfg.Port, svc.Router())
	if err != nil {
		serviceutil.Fatal("serve http", err)
	}
}
