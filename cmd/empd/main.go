package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"emp/internal/config"
	"emp/internal/daemon"
	"emp/internal/logging"
)

func main() {
	configFlag := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare state dir: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Daemon.LogLevel,
		Format:      cfg.Daemon.LogFormat,
		OutputPaths: []string{"stdout", cfg.LogPath()},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		os.Exit(1)
	}

	if err := d.Run(ctx); err != nil {
		logger.Error("daemon run", logging.Error(err))
		os.Exit(1)
	}
}
