package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"candlesync/config"
	"candlesync/internal/collector"
	"candlesync/logger"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default: $"+config.EnvConfigPath+" or ./config)")
	flag.Parse()

	// viper config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// zap logger
	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := collector.New(cfg, zl)
	if err != nil {
		zl.Fatal("failed to build collector", zap.Error(err))
	}
	defer c.Close()

	zl.Info("candlesync starting",
		zap.String("symbol", cfg.Symbol),
		zap.Strings("timeframes", cfg.Engine.Timeframes),
		zap.String("addr", cfg.HTTP.Addr))

	if err := c.Run(ctx); err != nil {
		zl.Error("collector stopped", zap.Error(err))
		return
	}
	zl.Info("candlesync stopped")
}
