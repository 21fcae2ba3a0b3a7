// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command nlbridge runs the applet bridge daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/nlbridge/internal/config"
	"github.com/ManuGH/nlbridge/internal/daemon"
	"github.com/ManuGH/nlbridge/internal/health"
	xglog "github.com/ManuGH/nlbridge/internal/log"
	"github.com/ManuGH/nlbridge/internal/telemetry"
	"github.com/ManuGH/nlbridge/internal/version"
	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:]))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:]))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	simulate := flag.Duration("simulate", 0, "with the fake driver, finish a simulated run at this interval")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// A missing .env file is the normal case.
	_ = godotenv.Load()

	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "nlbridge",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}

	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	if effectiveConfigPath != "" {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "file").
			Str(xglog.FieldPath, effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "startup.check_failed").
			Msg("Startup checks failed. Please verify configuration and permissions.")
	}

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		logger.Warn().Err(err).Str(xglog.FieldEvent, "telemetry.init_failed").Msg("telemetry initialization failed, continuing without tracing")
	}

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting nlbridge")
	logger.Info().Msgf("→ Driver: %s", cfg.Applet.Driver)
	switch cfg.Applet.Driver {
	case config.DriverBridge:
		logger.Info().Msgf("→ Relay: %s", config.MaskURL(cfg.Applet.BridgeURL))
	case config.DriverCDP:
		logger.Info().Msgf("→ Browser: %s (element #%s)", config.MaskURL(cfg.Applet.CDPURL), cfg.Applet.ElementID)
	}
	logger.Info().Msgf("→ Ledger: %s", cfg.Ledger.Backend)
	if cfg.Sinks.AMQPURL != "" {
		logger.Info().Msgf("→ AMQP: %s (exchange %s)", config.MaskURL(cfg.Sinks.AMQPURL), cfg.Sinks.AMQPExchange)
	}
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)

	rt, err := daemon.Build(ctx, cfg, daemon.RuntimeOptions{SimulateEvery: *simulate})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "runtime.build_failed").
			Msg("failed to assemble bridge")
	}
	if *simulate > 0 && rt.Simulator == nil {
		logger.Warn().Msg("--simulate has no effect without the fake driver")
	}

	mgr, err := daemon.NewManager(daemon.DefaultServerConfig(cfg.API.ListenAddr), daemon.Deps{
		Logger:         logger,
		APIHandler:     rt.API.Handler(),
		BeforeShutdown: rt.API.CloseStreams,
	})
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "manager.creation.failed").
			Msg("failed to create daemon manager")
	}
	if tp != nil {
		mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	}

	cfgHolder := config.NewConfigHolder(cfg, loader)
	if effectiveConfigPath == "" {
		// Nothing to watch or reload.
		cfgHolder = nil
	}

	app := daemon.NewApp(logger, mgr, cfgHolder, rt)
	if err := app.Run(ctx); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "manager.failed").
			Msg("daemon app failed")
	}

	logger.Info().Msg("server exiting")
}
