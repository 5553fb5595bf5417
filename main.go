package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"bastion/bootstrap"
	"bastion/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("bastion: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := bootstrap.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	app, err := bootstrap.NewApp(cfg, logger)
	if err != nil {
		return err
	}

	app.Start()

	if err := app.WaitForShutdown(); err != nil {
		logger.Errorw("Shutting down after failure", "error", err)
		app.Shutdown()
		os.Exit(1)
	}

	app.Shutdown()
	return nil
}
