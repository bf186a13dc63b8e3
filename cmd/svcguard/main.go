package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/jawher/mow.cli"
	"go.uber.org/zap"

	"svcguard/config"
)

func main() {
	app := cli.App("svcguard", "Resilient service-call client: registry, balancing, circuit breaking and health checks behind an admin API.")

	configPath := app.String(cli.StringOpt{
		Name:   "c config",
		Value:  "",
		Desc:   "Path to the YAML config file (searched in ./, ./configs, ~/.svcguard, /etc/svcguard when empty)",
		EnvVar: "SVCGUARD_CONFIG",
	})

	logLevel := app.String(cli.StringOpt{
		Name:   "log-level",
		Value:  "",
		Desc:   "Log level (debug, info, warn, error); overrides log.level",
		EnvVar: "SVCGUARD_LOG_LEVEL",
	})

	adminListen := app.String(cli.StringOpt{
		Name:   "admin-listen",
		Value:  "",
		Desc:   "Admin API listen address host:port; overrides admin.listen_address and admin.port",
		EnvVar: "SVCGUARD_ADMIN_LISTEN",
	})

	app.Action = func() {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
			cli.Exit(1)
		}
		if *logLevel != "" {
			cfg.Log.Level = *logLevel
		}

		logger, err := config.NewLogger(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot build logger: %v\n", err)
			cli.Exit(1)
		}
		defer func() { _ = logger.Sync() }()

		addr := cfg.AdminAddr()
		if *adminListen != "" {
			addr = *adminListen
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		d, err := newDaemon(cfg, addr, logger, nil)
		if err != nil {
			logger.Error("cannot start", zap.Error(err))
			cli.Exit(1)
		}
		if err := d.run(ctx); err != nil {
			logger.Error("stopped with error", zap.Error(err))
			cli.Exit(1)
		}
	}

	if err := app.Run(os.Args); err != nil {
		panic(fmt.Sprintf("Cannot run the app. Error was: %v", err))
	}
}
