package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hamed0406/fleethealth/internal/app"
	"github.com/hamed0406/fleethealth/internal/config"
	"github.com/hamed0406/fleethealth/internal/logging"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("FLEETHEALTH_CONFIG"), "path to YAML config (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, app.Sets{})
	if err != nil {
		logger.Fatal("app_init_failed", zap.Error(err))
	}
	defer a.Close()

	logger.Info("starting",
		zap.String("config", *cfgPath),
		zap.String("nodes_source", cfg.Nodes.Source.Kind),
		zap.String("proxies_source", cfg.Proxies.Source.Kind),
		zap.Duration("nodes_interval", cfg.Nodes.Interval),
		zap.Duration("proxies_interval", cfg.Proxies.Interval),
		zap.Bool("metrics", cfg.Metrics.Enabled),
	)
	if err := a.Run(ctx); err != nil {
		logger.Error("app_run_failed", zap.Error(err))
		os.Exit(1)
	}
}
