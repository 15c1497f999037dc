package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stayer/observability/logging"
)

func main() {
	configPath := flag.String("config", "./keeperd.yaml", "path to the keeper configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logging.Setup("keeperd", "").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup("keeperd", cfg.Environment)

	token := authToken()
	if token == "" {
		logger.Warn("KEEPERD_RPC_TOKEN is not set, authenticated RPC calls will be rejected")
	}

	client := NewClient(cfg.NodeURL, token, nil)
	backend := NewSimulatedBackend(cfg.Validators, 0)
	relay := NewRelay(client, backend, cfg.KeeperAddress, cfg.FeedID, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("keeper started", "node", cfg.NodeURL, "interval", cfg.interval().String())
	ticker := time.NewTicker(cfg.interval())
	defer ticker.Stop()

	relay.RunCycle(ctx)
	for {
		select {
		case sig := <-stop:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
			return
		case <-ticker.C:
			relay.RunCycle(ctx)
		}
	}
}
