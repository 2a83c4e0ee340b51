package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/adapter/storage"
	"github.com/ibrahimkeyboad/gobank/internal/core/config"
	"github.com/ibrahimkeyboad/gobank/internal/core/logging"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg, _ := config.LoadConfig()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	if err := storage.RunMigrations(cfg.DatabaseURL, storage.Direction(*direction), logger); err != nil {
		logger.Fatal("migration failed", zap.String("direction", *direction), zap.Error(err))
	}
}
